package core

import "fmt"

// MisfireInstructionSmartPolicy is always a valid misfire instruction for
// every concrete trigger type. It means "defer to the concrete trigger's
// UpdateAfterMisfire".
const MisfireInstructionSmartPolicy = 0

// MisfireValidator is supplied by a concrete trigger type to extend the
// smart-policy instruction with its own additional codes (e.g. fire-now,
// reschedule-next-with-existing-count). BaseTrigger.SetMisfireInstruction
// delegates to this predicate and fails with ErrUnknownMisfirePolicy when it
// returns false.
type MisfireValidator func(instruction int) bool

// AlwaysValidMisfirePolicy accepts the smart policy and nothing else, the
// same set BaseTrigger accepts when a concrete trigger registers no
// validator.
func AlwaysValidMisfirePolicy(instruction int) bool {
	return instruction == MisfireInstructionSmartPolicy
}

func validateMisfireInstruction(instruction int, validator MisfireValidator) error {
	if instruction == MisfireInstructionSmartPolicy {
		return nil
	}
	if validator != nil && validator(instruction) {
		return nil
	}
	return fmt.Errorf("%w: %d", ErrUnknownMisfirePolicy, instruction)
}
