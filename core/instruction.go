package core

// CompletionInstruction is the instruction code a trigger returns from
// ExecutionComplete, telling the job run shell (and, through it, the
// scheduler) what to do next. The integer values are part of
// the wire contract between trigger implementations and the shell and must
// stay stable.
type CompletionInstruction int

const (
	// InstructionNoop means proceed normally; nothing further to do.
	InstructionNoop CompletionInstruction = 0

	// InstructionReExecuteJob means re-run the job immediately on the same
	// worker, preserving the execution context.
	InstructionReExecuteJob CompletionInstruction = 1

	// InstructionSetTriggerComplete marks this trigger COMPLETE.
	InstructionSetTriggerComplete CompletionInstruction = 2

	// InstructionDeleteTrigger removes this trigger from the store.
	InstructionDeleteTrigger CompletionInstruction = 3

	// InstructionSetAllJobTriggersComplete marks every trigger for the job
	// COMPLETE.
	InstructionSetAllJobTriggersComplete CompletionInstruction = 4

	// InstructionSetTriggerError marks this trigger ERROR.
	InstructionSetTriggerError CompletionInstruction = 5

	// InstructionSetAllJobTriggersError marks every trigger for the job
	// ERROR.
	InstructionSetAllJobTriggersError CompletionInstruction = 6
)

func (i CompletionInstruction) String() string {
	switch i {
	case InstructionNoop:
		return "NOOP"
	case InstructionReExecuteJob:
		return "RE_EXECUTE_JOB"
	case InstructionSetTriggerComplete:
		return "SET_TRIGGER_COMPLETE"
	case InstructionDeleteTrigger:
		return "DELETE_TRIGGER"
	case InstructionSetAllJobTriggersComplete:
		return "SET_ALL_JOB_TRIGGERS_COMPLETE"
	case InstructionSetTriggerError:
		return "SET_TRIGGER_ERROR"
	case InstructionSetAllJobTriggersError:
		return "SET_ALL_JOB_TRIGGERS_ERROR"
	default:
		return "UNKNOWN"
	}
}
