package mission

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrMissionNotFound    = errors.New("mission not found")
	ErrMissionInactive    = errors.New("mission is not active")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrDuplicatePending   = errors.New("a pending submission already exists for this mission")
	ErrCooldownActive     = errors.New("mission cooldown is still active")
	ErrAlreadyProcessed   = errors.New("submission was already processed")

	ErrEvidenceMissing = fmt.Errorf("%w: evidence file was not uploaded", ErrInvalidInput)
)

// CooldownError is returned by CreateSubmission while the user's cooldown runs.
// errors.Is(err, ErrCooldownActive) holds for it.
type CooldownError struct {
	RemainingDays int
	Until         *time.Time
	Permanent     bool
}

func (e *CooldownError) Error() string {
	if e.Permanent {
		return "mission can only be completed once"
	}
	return fmt.Sprintf("mission cooldown is still active: %d day(s) remaining", e.RemainingDays)
}

func (e *CooldownError) Unwrap() error {
	return ErrCooldownActive
}
