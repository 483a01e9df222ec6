package taskory

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrCompletionFailed indicates the completion request to the LLM
	// transport failed. It is fatal for the current turn.
	ErrCompletionFailed = goerr.New("completion request failed")

	// ErrInvalidTaskID, ErrCircularDependency and ErrUnknownDependency
	// abort plan creation. A plan that fails graph validation is never
	// stored.
	ErrInvalidTaskID      = goerr.New("invalid task id")
	ErrCircularDependency = goerr.New("circular dependency detected")
	ErrUnknownDependency  = goerr.New("dependency references unknown task")

	ErrNoActivePlan        = goerr.New("no active plan")
	ErrPlanNotApprovable   = goerr.New("plan is not awaiting approval")
	ErrPlanLocked          = goerr.New("plan is locked")
	ErrPlanTerminal        = goerr.New("plan is in a terminal state")
	ErrNoPendingPermission = goerr.New("no pending permission request")
	ErrUnknownTask         = goerr.New("unknown task id")

	ErrCapabilityConflict = goerr.New("capability kind conflict")
	ErrCapabilityNotFound = goerr.New("no capability registered for kind")

	ErrInvalidParameter = goerr.New("invalid parameter")
)
