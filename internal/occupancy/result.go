package occupancy

// Outcome names the result of an occupancy operation.
type Outcome string

const (
	OutcomeOK                   Outcome = "ok"
	OutcomeAlreadyCheckedInHere Outcome = "already_checked_in_here"
	OutcomeMustCheckOutFirst    Outcome = "must_check_out_first"
	OutcomeCheckInFailed        Outcome = "check_in_failed"
	OutcomeNotCheckedIn         Outcome = "not_checked_in"
	OutcomeCheckOutFailed       Outcome = "check_out_failed"
)

// Result is returned by every engine operation. Message is meant for the end user.
type Result struct {
	Outcome Outcome
	Message string
	Err     error
}

// Succeeded reports whether the operation completed.
func (r Result) Succeeded() bool {
	return r.Outcome == OutcomeOK
}

func ok(message string) Result {
	return Result{Outcome: OutcomeOK, Message: message}
}

func failed(outcome Outcome, err error, message string) Result {
	return Result{Outcome: outcome, Message: message, Err: err}
}
