package capability_test

import (
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/taskory"
	"github.com/m-mizutani/taskory/capability"
)

func TestShellBacktickCommand(t *testing.T) {
	s := capability.NewShell()
	out, err := s.Invoke(t.Context(), "shell", map[string]any{
		"description": "Run `echo hello` and report the output",
	})
	gt.NoError(t, err)
	gt.Equal(t, out["content"], any("hello"))
}

func TestShellRunPrefix(t *testing.T) {
	s := capability.NewShell()
	out, err := s.Invoke(t.Context(), "shell", map[string]any{
		"description": "run the command echo hi there",
	})
	gt.NoError(t, err)
	gt.Equal(t, out["content"], any("hi there"))
}

func TestShellFailureIsNotRetried(t *testing.T) {
	s := capability.NewShell()
	_, err := s.Invoke(t.Context(), "shell", map[string]any{
		"description": "Run `exit 3`",
	})
	gt.Error(t, err)

	// Side effects already happened; the scheduler must not retry.
	gt.True(t, goerr.HasTag(err, taskory.TagValidation))
}

func TestShellSpecRequiresConfirmation(t *testing.T) {
	s := capability.NewShell()
	specs, err := s.Specs(t.Context())
	gt.NoError(t, err)
	gt.A(t, specs).Length(1)
	gt.True(t, specs[0].RequiresConfirmation)
	gt.Equal(t, specs[0].Kind, taskory.CapabilityShell)
}
