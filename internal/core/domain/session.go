package domain

import "time"

// SessionStatus is the lifecycle state of an application session.
//
// Valid transitions:
//
//	pending -> in_progress <-> paused -> submitted | failed
//	in_progress -> needs_intervention -> (resume) -> in_progress
//
// submitted and failed are terminal. MarkApplied short-circuits any
// non-terminal status directly to submitted.
type SessionStatus string

const (
	SessionPending           SessionStatus = "pending"
	SessionInProgress        SessionStatus = "in_progress"
	SessionPaused            SessionStatus = "paused"
	SessionNeedsIntervention SessionStatus = "needs_intervention"
	SessionSubmitted         SessionStatus = "submitted"
	SessionFailed            SessionStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == SessionSubmitted || s == SessionFailed
}

// Recoverable reports whether the status implies resumable work may exist.
// The backend additionally confirms a resumable browser context before a
// session is advertised as resumable.
func (s SessionStatus) Recoverable() bool {
	return s == SessionPaused || s == SessionNeedsIntervention
}

// CanTransition validates a status change against the session state machine.
func (s SessionStatus) CanTransition(to SessionStatus) bool {
	if s.Terminal() {
		return false
	}
	// Manual completion is permitted from any non-terminal state.
	if to == SessionSubmitted {
		return true
	}
	switch s {
	case SessionPending:
		return to == SessionInProgress || to == SessionFailed
	case SessionInProgress:
		return to == SessionPaused || to == SessionNeedsIntervention || to == SessionFailed
	case SessionPaused:
		return to == SessionInProgress || to == SessionFailed
	case SessionNeedsIntervention:
		return to == SessionInProgress || to == SessionFailed
	}
	return false
}

// Session is a summary of one automated-application attempt against a job
// posting.
type Session struct {
	ID           string        `json:"session_id"`
	JobURL       string        `json:"job_url"`
	Status       SessionStatus `json:"status"`
	CurrentStep  int           `json:"current_step"`
	FieldsFilled int           `json:"fields_filled"`
	CanResume    bool          `json:"can_resume"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at,omitempty"`
	PausedAt     *time.Time    `json:"paused_at,omitempty"`

	// Unconfirmed marks a locally-applied optimistic status that has not
	// yet been overwritten by an authoritative snapshot. Never serialized
	// to the backend.
	Unconfirmed bool `json:"-"`
}

// SessionDetail is the full per-session view used by detail dialogs.
type SessionDetail struct {
	Session

	TotalSteps      int               `json:"total_steps,omitempty"`
	StepsCompleted  []string          `json:"steps_completed,omitempty"`
	FilledFields    map[string]string `json:"filled_fields,omitempty"`
	RemainingFields []string          `json:"remaining_fields,omitempty"`
	BlockerType     string            `json:"blocker_type,omitempty"`
	BlockerDetail   string            `json:"blocker_detail,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	ScreenshotPath  string            `json:"screenshot_path,omitempty"`
}

// ResumeOptions tunes a resume command.
type ResumeOptions struct {
	RestoreBrowser   bool `json:"restore_browser,omitempty"`
	AutoSolveCaptcha bool `json:"auto_solve_captcha,omitempty"`
}

// SessionProgress is the live per-session progress delivered over a
// session-scoped channel.
type SessionProgress struct {
	SessionID    string        `json:"session_id"`
	Status       SessionStatus `json:"status"`
	CurrentStep  int           `json:"current_step"`
	FieldsFilled int           `json:"fields_filled"`
	BlockerType  string        `json:"blocker_type,omitempty"`
}

// StartRequest launches a new automated application.
type StartRequest struct {
	JobURL           string            `json:"job_url"`
	UserData         map[string]string `json:"user_data"`
	CVContent        string            `json:"cv_content"`
	CVFilePath       string            `json:"cv_file_path,omitempty"`
	CoverLetter      string            `json:"cover_letter,omitempty"`
	Agent            string            `json:"agent,omitempty"`
	AutoSolveCaptcha bool              `json:"auto_solve_captcha,omitempty"`
}

// ApplicationResult is the backend's response to start and resume commands.
type ApplicationResult struct {
	SessionID         string   `json:"session_id"`
	Status            string   `json:"status"`
	Success           bool     `json:"success"`
	AgentUsed         string   `json:"agent_used,omitempty"`
	StepsCompleted    []string `json:"steps_completed,omitempty"`
	FieldsFilled      int      `json:"fields_filled"`
	InterventionID    string   `json:"intervention_id,omitempty"`
	InterventionType  string   `json:"intervention_type,omitempty"`
	InterventionTitle string   `json:"intervention_title,omitempty"`
	CaptchaSolved     bool     `json:"captcha_solved,omitempty"`
	Error             string   `json:"error,omitempty"`
	FinalURL          string   `json:"final_url,omitempty"`
}
