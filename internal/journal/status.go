package journal

import "questlog/internal/apperr"

// Status is the journal lifecycle: draft -> in_review -> complete.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusInReview Status = "in_review"
	StatusComplete Status = "complete"
)

var (
	ErrAlreadyCompleted = apperr.Conflict("journal already completed")
	ErrAlreadyInReview  = apperr.Conflict("journal already in review")
	ErrNotInReview      = apperr.Conflict("journal is not in review")
	ErrNotDraft         = apperr.Conflict("journal can only be changed while draft")
	ErrUnknownStatus    = apperr.Validation("unknown journal status", nil)
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusInReview, StatusComplete:
		return true
	}
	return false
}

// StartReflection is the draft -> in_review transition.
func (s Status) StartReflection() (Status, error) {
	switch s {
	case StatusDraft:
		return StatusInReview, nil
	case StatusInReview:
		return s, ErrAlreadyInReview
	case StatusComplete:
		return s, ErrAlreadyCompleted
	}
	return s, ErrUnknownStatus
}

// CanChat reports whether a turn may be appended.
func (s Status) CanChat() error {
	switch s {
	case StatusInReview:
		return nil
	case StatusComplete:
		return ErrAlreadyCompleted
	case StatusDraft:
		return ErrNotInReview
	}
	return ErrUnknownStatus
}

// Finish is the in_review -> complete transition.
func (s Status) Finish() (Status, error) {
	switch s {
	case StatusInReview:
		return StatusComplete, nil
	case StatusComplete:
		return s, ErrAlreadyCompleted
	case StatusDraft:
		return s, ErrNotInReview
	}
	return s, ErrUnknownStatus
}

// Editable guards deletes and free-form edits.
func (s Status) Editable() error {
	switch s {
	case StatusDraft:
		return nil
	case StatusInReview, StatusComplete:
		return ErrNotDraft
	}
	return ErrUnknownStatus
}
