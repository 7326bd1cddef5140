package graph

import "errors"

// EngineError is a structured error from runtime operations.
type EngineError struct {
	Message string
	Code    string
}

// Error codes returned by the runtime.
const (
	CodeMissingReducer   = "MISSING_REDUCER"
	CodeMissingStore     = "MISSING_STORE"
	CodeNoStartNode      = "NO_START_NODE"
	CodeNodeNotFound     = "NODE_NOT_FOUND"
	CodeDuplicateNode    = "DUPLICATE_NODE"
	CodeMaxStepsExceeded = "MAX_STEPS_EXCEEDED"
	CodeNoRoute          = "NO_ROUTE"
	CodeStoreError       = "STORE_ERROR"
	CodeRunNotFound      = "RUN_NOT_FOUND"
)

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// IsEngineCode reports whether err is an EngineError with the given code.
func IsEngineCode(err error, code string) bool {
	var ee *EngineError
	return errors.As(err, &ee) && ee.Code == code
}
