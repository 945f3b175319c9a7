package controller

// Phase is the controller's position in the session loop.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSelecting  Phase = "selecting"
	PhaseAssembling Phase = "assembling"
	PhaseExecuting  Phase = "executing"
	PhaseValidating Phase = "validating"
	PhaseCommitting Phase = "committing"
	PhaseRecording  Phase = "recording"
	PhaseRetrying   Phase = "retrying"
	PhaseBlocked    Phase = "blocked"
	PhaseCompleted  Phase = "completed"
	PhasePaused     Phase = "paused"
	PhaseAborted    Phase = "aborted"
)

// Terminal reports whether the run loop has stopped in this phase.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseBlocked, PhaseCompleted, PhasePaused, PhaseAborted:
		return true
	default:
		return false
	}
}

// Error kinds recorded on failed ledger entries.
const (
	KindContextOverflow = "context_overflow"
	KindUnscoped        = "unscoped_request"
	KindAssembly        = "assembly"
	KindTimeout         = "timeout"
	KindValidation      = "validation"
	KindStructural      = "structural"
	KindCommit          = "commit"
	KindWorker          = "worker"
	KindInterrupted     = "interrupted"
)
