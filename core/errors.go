package core

import "errors"

// Sentinel errors for trigger mutators. All of them are raised
// synchronously by a setter, never seen by the job run shell.
var (
	ErrInvalidArgument = errors.New("invalid argument")

	ErrNameRequired         = errors.New("trigger name must not be empty")
	ErrJobNameRequired      = errors.New("job name must not be empty")
	ErrGroupEmpty           = errors.New("group must not be blank")
	ErrJobGroupEmpty        = errors.New("job group must not be blank")
	ErrEndBeforeStart       = errors.New("end time cannot be before start time")
	ErrStartAfterEnd        = errors.New("start time cannot be after end time")
	ErrUnknownMisfirePolicy = errors.New("unknown misfire instruction for this trigger type")
)

// ErrValidation is returned by Validate(), the pre-scheduling gate that
// rejects a trigger before it is ever handed to the job run shell.
var ErrValidation = errors.New("trigger failed validation")
