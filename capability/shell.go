package capability

import (
	"context"
	"os/exec"
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/taskory"
)

var (
	backtickRe  = regexp.MustCompile("`([^`]+)`")
	runPrefixRe = regexp.MustCompile(`(?i)^(?:run|execute|exec)\s+(?:the\s+command\s+)?`)
)

// Shell executes commands with the system shell. The command is taken
// from the task description: a backtick-quoted span wins, then a
// run/execute prefix is stripped, and the remainder is the command.
// Always confirmation gated; a failed command is not retried since the
// side effects already happened.
type Shell struct {
	shell string
}

// ShellOption is the type for Shell options.
type ShellOption func(*Shell)

// WithShell replaces the default interpreter ("sh").
func WithShell(shell string) ShellOption {
	return func(s *Shell) {
		s.shell = shell
	}
}

// NewShell creates the shell capability.
func NewShell(options ...ShellOption) *Shell {
	s := &Shell{shell: "sh"}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Shell) Specs(ctx context.Context) ([]taskory.CapabilitySpec, error) {
	return []taskory.CapabilitySpec{
		{
			Name:                 "shell",
			Kind:                 taskory.CapabilityShell,
			Description:          "Execute a command with the system shell",
			RequiresConfirmation: true,
			Parameters: map[string]*taskory.Parameter{
				"description": {
					Type:        taskory.TypeString,
					Description: "The command to run, optionally backtick quoted",
					Required:    true,
				},
			},
		},
	}, nil
}

func (s *Shell) Invoke(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	description, err := descriptionArg(args)
	if err != nil {
		return nil, err
	}

	command := extractCommand(description)
	if command == "" {
		return nil, goerr.Wrap(taskory.ErrInvalidParameter, "no command in description",
			goerr.V("description", description), goerr.T(taskory.TagValidation))
	}

	taskory.LoggerFromContext(ctx).Debug("shell exec", "command", command)

	out, err := exec.CommandContext(ctx, s.shell, "-c", command).CombinedOutput()
	if err != nil {
		return nil, goerr.Wrap(err, "command failed",
			goerr.V("command", command), goerr.V("output", string(out)),
			goerr.T(taskory.TagValidation))
	}
	return map[string]any{"content": strings.TrimRight(string(out), "\n")}, nil
}

func extractCommand(description string) string {
	if m := backtickRe.FindStringSubmatch(description); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(runPrefixRe.ReplaceAllString(strings.TrimSpace(description), ""))
}
