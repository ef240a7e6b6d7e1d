package booking

import "fmt"

// ValidationError reports a malformed or unsupported request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "booking: " + e.Message
	}
	return fmt.Sprintf("booking: %s: %s", e.Field, e.Message)
}

// NotFoundError reports an unknown or expired hold, or a slot that does not
// belong to the hold.
type NotFoundError struct {
	HoldID       string
	SlotMismatch bool
}

func (e *NotFoundError) Error() string {
	if e.SlotMismatch {
		return fmt.Sprintf("booking: selected slot does not match hold %s", e.HoldID)
	}
	return fmt.Sprintf("booking: hold %s not found or expired", e.HoldID)
}

// ConflictError reports that another hold in the group was already confirmed.
type ConflictError struct {
	HoldID  string
	GroupID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("booking: group %s already has a confirmed appointment (hold %s)", e.GroupID, e.HoldID)
}

// UpstreamError reports a calendar or storage failure after retries.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("booking: %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
