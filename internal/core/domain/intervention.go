// Package domain provides the canonical types shared across the sync bridge:
// interventions, application sessions, channel events, and the error taxonomy.
package domain

import "time"

// InterventionType classifies why automation stalled and needs a human.
type InterventionType string

const (
	InterventionCaptcha            InterventionType = "captcha"
	InterventionLoginRequired      InterventionType = "login_required"
	InterventionFileUpload         InterventionType = "file_upload"
	InterventionCustomQuestion     InterventionType = "custom_question"
	InterventionMultiStepForm      InterventionType = "multi_step_form"
	InterventionReviewBeforeSubmit InterventionType = "review_before_submit"
	InterventionError              InterventionType = "error"
	InterventionOther              InterventionType = "other"
)

// InterventionStatus is the lifecycle state of an intervention.
// Valid transitions: pending -> in_progress (optional) -> resolved |
// cancelled | timed_out. The last three are terminal.
type InterventionStatus string

const (
	InterventionPending    InterventionStatus = "pending"
	InterventionInProgress InterventionStatus = "in_progress"
	InterventionResolved   InterventionStatus = "resolved"
	InterventionCancelled  InterventionStatus = "cancelled"
	InterventionTimedOut   InterventionStatus = "timed_out"
)

// Terminal reports whether the status admits no further transitions.
func (s InterventionStatus) Terminal() bool {
	switch s {
	case InterventionResolved, InterventionCancelled, InterventionTimedOut:
		return true
	}
	return false
}

// Intervention is a request for human attention blocking one automated
// application step. The backend is the source of truth; local copies are a
// cache with at-most-eventual consistency.
type Intervention struct {
	ID        string             `json:"id"`
	SessionID string             `json:"session_id"`
	Type      InterventionType   `json:"intervention_type"`
	Status    InterventionStatus `json:"status"`

	Title        string `json:"title"`
	Description  string `json:"description"`
	Instructions string `json:"instructions,omitempty"`
	CurrentURL   string `json:"current_url,omitempty"`

	CaptchaType         string `json:"captcha_type,omitempty"`
	CaptchaSolveAttempt bool   `json:"captcha_solve_attempted,omitempty"`
	CaptchaSolveError   string `json:"captcha_solve_error,omitempty"`

	FieldsFilled    map[string]string `json:"fields_filled,omitempty"`
	FieldsRemaining []string          `json:"fields_remaining,omitempty"`
	ScreenshotPath  string            `json:"screenshot_path,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ResolveAction is the action attached to an intervention resolution.
type ResolveAction string

const (
	ResolveContinue ResolveAction = "continue"
	ResolveSubmit   ResolveAction = "submit"
	ResolveCancel   ResolveAction = "cancel"
	ResolveRetry    ResolveAction = "retry"
)

// ResolveRequest is the body of a resolve command.
type ResolveRequest struct {
	Action       ResolveAction `json:"action"`
	Notes        string        `json:"notes,omitempty"`
	CloseBrowser bool          `json:"close_browser,omitempty"`
}

// ResolveResult is the backend's acknowledgment of a resolve command.
type ResolveResult struct {
	Status         string        `json:"status"`
	InterventionID string        `json:"intervention_id"`
	Action         ResolveAction `json:"action"`
}
