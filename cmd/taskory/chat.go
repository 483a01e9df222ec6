package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/taskory"
	"github.com/spf13/cobra"
)

func chatCmd() *cobra.Command {
	var sessionID string
	var autoApprove bool

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Run one conversational turn; the message is read from stdin when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message, err := readMessage(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			engine, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}

			turn, err := engine.Chat(cmd.Context(), sessionID, message)
			if err != nil {
				return err
			}

			if turn.Kind == taskory.TurnProposal && autoApprove {
				turn, err = engine.Approve(cmd.Context(), turn.SessionID)
				if err != nil {
					return err
				}
			}

			printTurn(cmd.OutOrStdout(), turn)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session ID to continue")
	cmd.Flags().BoolVar(&autoApprove, "yes", false, "approve a proposed plan immediately")
	return cmd
}

func readMessage(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read message from stdin")
	}
	message := strings.TrimSpace(string(data))
	if message == "" {
		return "", goerr.New("no message given")
	}
	return message, nil
}

func printTurn(w io.Writer, turn *taskory.Turn) {
	switch turn.Kind {
	case taskory.TurnClarification:
		fmt.Fprintln(w, turn.Question)
		for _, opt := range turn.Options {
			fmt.Fprintf(w, "  - %s\n", opt)
		}
	default:
		fmt.Fprintln(w, turn.Reply)
	}
	if turn.Pending != nil {
		fmt.Fprintf(w, "(confirmation pending for task %s)\n", turn.Pending.TaskID)
	}
	fmt.Fprintf(w, "session: %s\n", turn.SessionID)
}
