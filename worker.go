package taskory

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// ParameterType is the type of a capability parameter.
type ParameterType string

const (
	TypeString  ParameterType = "string"
	TypeNumber  ParameterType = "number"
	TypeInteger ParameterType = "integer"
	TypeBoolean ParameterType = "boolean"
	TypeArray   ParameterType = "array"
	TypeObject  ParameterType = "object"
)

// Parameter describes one declared input of a capability.
type Parameter struct {
	Type        ParameterType
	Description string
	Required    bool
}

// CapabilitySpec is the declaration of a named function a worker may
// invoke. RequiresConfirmation marks capabilities that pause for
// explicit approval when the execution mode is manual.
type CapabilitySpec struct {
	Name                 string
	Kind                 Capability
	Description          string
	RequiresConfirmation bool
	Parameters           map[string]*Parameter
}

// Validate validates the capability specification.
func (s *CapabilitySpec) Validate() error {
	if s.Name == "" {
		return goerr.Wrap(ErrInvalidParameter, "capability name is required")
	}
	if s.Kind == "" {
		return goerr.Wrap(ErrInvalidParameter, "capability kind is required", goerr.V("name", s.Name))
	}
	return nil
}

// CapabilitySet is a group of capabilities registered together. The
// engine and scheduler depend only on this contract, never on a
// concrete tool's implementation.
type CapabilitySet interface {
	// Specs returns the declarations of the capabilities in the set.
	Specs(ctx context.Context) ([]CapabilitySpec, error)

	// Invoke executes the named capability. An error return is the
	// worker's failure, not an abort of the whole plan.
	Invoke(ctx context.Context, name string, args map[string]any) (map[string]any, error)
}

// boundCapability pairs one spec with the set that serves it.
type boundCapability struct {
	spec CapabilitySpec
	set  CapabilitySet
}

// buildCapabilityMap resolves capability sets into a closed kind ->
// handler registry. Registering two capabilities for the same kind is
// a hard error, mirroring tool-name conflicts.
func buildCapabilityMap(ctx context.Context, sets []CapabilitySet) (map[Capability]boundCapability, error) {
	caps := map[Capability]boundCapability{}

	for _, set := range sets {
		specs, err := set.Specs(ctx)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get capability specs")
		}
		for _, spec := range specs {
			if err := spec.Validate(); err != nil {
				return nil, err
			}
			if _, ok := caps[spec.Kind]; ok {
				return nil, goerr.Wrap(ErrCapabilityConflict, "duplicate capability kind",
					goerr.V("kind", spec.Kind), goerr.V("name", spec.Name))
			}
			caps[spec.Kind] = boundCapability{spec: spec, set: set}
		}
	}

	logger := LoggerFromContext(ctx)
	kinds := make([]string, 0, len(caps))
	for kind := range caps {
		kinds = append(kinds, string(kind))
	}
	logger.Debug("capability registry built", "kinds", kinds)

	return caps, nil
}

// workerResult is the outcome of one worker invocation.
type workerResult struct {
	success bool
	content string
	err     error
}

func (r workerResult) transient() bool {
	if r.err == nil {
		return false
	}
	// Validation-class failures never retry; everything else (timeout,
	// transport, tool runtime) is assumed transient.
	return !goerr.HasTag(r.err, TagValidation)
}

// TagValidation marks a worker error as a validation failure that must
// not be retried. Capability implementations attach it with goerr.T.
var TagValidation = goerr.NewTag("validation")

// worker is a stateless executor for one capability domain. It receives
// only the task description plus explicitly forwarded dependency
// outputs, never the session's full history. Nothing persists across
// two invocations.
type worker struct {
	description string
	bound       boundCapability
	inputs      map[string]string
	timeout     time.Duration
}

func spawnWorker(bound boundCapability, description string, inputs map[string]string, timeout time.Duration) *worker {
	return &worker{
		description: description,
		bound:       bound,
		inputs:      inputs,
		timeout:     timeout,
	}
}

// run invokes the capability under the configured timeout. A deadline
// hit surfaces as a transient failure, eligible for the scheduler's
// retry policy.
func (w *worker) run(ctx context.Context) workerResult {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	logger := LoggerFromContext(ctx)
	logger.Debug("worker dispatch",
		"capability", w.bound.spec.Kind,
		"name", w.bound.spec.Name,
		"description", w.description)

	args := map[string]any{"description": w.description}
	if len(w.inputs) > 0 {
		inputs := make(map[string]any, len(w.inputs))
		for k, v := range w.inputs {
			inputs[k] = v
		}
		args["inputs"] = inputs
	}

	out, err := w.bound.set.Invoke(ctx, w.bound.spec.Name, args)
	if err != nil {
		return workerResult{err: goerr.Wrap(err, "worker invocation failed",
			goerr.V("capability", w.bound.spec.Kind))}
	}

	return workerResult{success: true, content: renderWorkerOutput(out)}
}

// renderWorkerOutput flattens a capability result into the text carried
// on the task. A bare "content" field passes through unchanged; richer
// results are serialized.
func renderWorkerOutput(out map[string]any) string {
	if out == nil {
		return ""
	}
	if len(out) == 1 {
		if content, ok := out["content"].(string); ok {
			return content
		}
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		var sb strings.Builder
		for k, v := range out {
			sb.WriteString(k)
			sb.WriteString(": ")
			if s, ok := v.(string); ok {
				sb.WriteString(s)
			}
			sb.WriteString("\n")
		}
		return sb.String()
	}
	return string(encoded)
}
