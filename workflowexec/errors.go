package workflowexec

import "errors"

var (
	ErrEmptyWorkflow    = errors.New("workflowexec: workflow has no steps")
	ErrInvalidStep      = errors.New("workflowexec: step missing id")
	ErrDanglingEdge     = errors.New("workflowexec: edge references unknown step")
	ErrExecutionNotFound = errors.New("workflowexec: execution not found")
	ErrWorkflowNotFound = errors.New("workflowexec: workflow not found")
	ErrLoopAlreadyRunning = errors.New("workflowexec: execution loop already running")
	ErrNotPaused        = errors.New("workflowexec: execution is not paused")
	ErrTerminalState    = errors.New("workflowexec: execution is in a terminal state")
	ErrNoSuchContextItem = errors.New("workflowexec: context item not found")
	ErrNotAwaitingInput = errors.New("workflowexec: execution is not awaiting input")
	ErrRetriggerNotAllowed = errors.New("workflowexec: workflow trigger type does not allow re-trigger after completion")
	ErrFeedbackNotFound = errors.New("workflowexec: feedback item not found")
)
