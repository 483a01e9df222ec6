package capability

import (
	"context"
	"os/exec"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/taskory"
)

// Runner executes a code task and returns its textual output. The
// source is the task description plus any forwarded dependency outputs.
type Runner func(ctx context.Context, source string) (string, error)

// Code runs code tasks through an explicitly configured Runner. Without
// a runner the capability rejects every invocation, so enabling code
// execution is always a deliberate choice of the embedding application.
type Code struct {
	runner Runner
}

// NewCode creates the code capability with the given runner.
func NewCode(runner Runner) *Code {
	return &Code{runner: runner}
}

// CommandRunner returns a Runner that pipes the source to a command's
// stdin and returns its combined output.
func CommandRunner(name string, args ...string) Runner {
	return func(ctx context.Context, source string) (string, error) {
		cmd := exec.CommandContext(ctx, name, args...)
		cmd.Stdin = strings.NewReader(source)
		out, err := cmd.CombinedOutput()
		if err != nil {
			return "", goerr.Wrap(err, "runner command failed",
				goerr.V("command", name), goerr.V("output", string(out)),
				goerr.T(taskory.TagValidation))
		}
		return string(out), nil
	}
}

func (c *Code) Specs(ctx context.Context) ([]taskory.CapabilitySpec, error) {
	return []taskory.CapabilitySpec{
		{
			Name:                 "code",
			Kind:                 taskory.CapabilityCode,
			Description:          "Run a code task through the configured runner",
			RequiresConfirmation: true,
			Parameters: map[string]*taskory.Parameter{
				"description": {
					Type:        taskory.TypeString,
					Description: "What the code task should do",
					Required:    true,
				},
			},
		},
	}, nil
}

func (c *Code) Invoke(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	description, err := descriptionArg(args)
	if err != nil {
		return nil, err
	}
	if c.runner == nil {
		return nil, goerr.Wrap(taskory.ErrCapabilityNotFound, "no code runner configured",
			goerr.T(taskory.TagValidation))
	}

	out, err := c.runner(ctx, renderPrompt(description, args))
	if err != nil {
		return nil, goerr.Wrap(err, "code runner failed")
	}
	return map[string]any{"content": out}, nil
}
