// Package linkstate tracks the status of one device's link to its peer.
//
// Each device owns its own Machine; peers never share state. The machine
// always reflects the outcome of the most recent attempt, not a cumulative
// status: Succeeded and Failed are left again on the next lifecycle or
// reachability event.
//
// Transitions (from, event -> to):
//
//	any          Activated          -> Waiting
//	any          ActivationFailed   -> Failed(cause)
//	any          Reachable          -> Waiting
//	any          Unreachable        -> Failed("peer unreachable")
//	Waiting      SendIssued         -> InProgress
//	Succeeded    SendIssued         -> InProgress
//	Failed       SendIssued         -> InProgress
//	Waiting      SendSucceeded      -> Succeeded
//	InProgress   SendSucceeded      -> Succeeded
//	Succeeded    SendSucceeded      -> Succeeded
//	Waiting      SendFailed         -> Failed(cause)
//	InProgress   SendFailed         -> Failed(cause)
//	Succeeded    SendFailed         -> Failed(cause)
//	any          ReceiveSucceeded   -> Succeeded
//	any          ReceiveFailed      -> Failed(cause)
//	any          Inactive           -> Initial
//	any          Deactivated        -> Initial
//
// Any other (state, event) pair is ignored. Evaluation is a pure function of
// the current state and the event, so a fixed event sequence from a fixed
// start always yields the same state sequence.
package linkstate
