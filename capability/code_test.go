package capability_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/taskory"
	"github.com/m-mizutani/taskory/capability"
)

func TestCodeWithoutRunner(t *testing.T) {
	c := capability.NewCode(nil)
	_, err := c.Invoke(t.Context(), "code", map[string]any{
		"description": "Compute the checksum of the dataset",
	})
	gt.True(t, errors.Is(err, taskory.ErrCapabilityNotFound))
}

func TestCodeRunnerReceivesContext(t *testing.T) {
	var source string
	c := capability.NewCode(func(ctx context.Context, src string) (string, error) {
		source = src
		return "42", nil
	})

	out, err := c.Invoke(t.Context(), "code", map[string]any{
		"description": "Compute the checksum of the dataset",
		"inputs":      map[string]any{"t1": "dataset contents"},
	})
	gt.NoError(t, err)
	gt.Equal(t, out["content"], any("42"))
	gt.S(t, source).Contains("Compute the checksum of the dataset")
	gt.S(t, source).Contains("- t1: dataset contents")
}

func TestCommandRunner(t *testing.T) {
	runner := capability.CommandRunner("cat")
	out, err := runner(t.Context(), "echo input through")
	gt.NoError(t, err)
	gt.Equal(t, out, "echo input through")
}
