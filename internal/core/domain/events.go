package domain

import "encoding/json"

// EventType discriminates inbound channel envelopes.
type EventType string

const (
	// EventInitialState and EventRefresh carry an authoritative snapshot
	// that replaces reconciled state wholesale.
	EventInitialState EventType = "initial_state"
	EventRefresh      EventType = "refresh"

	// EventIntervention announces a newly pending intervention.
	EventIntervention EventType = "intervention"

	// EventInterventionResolved announces that some actor resolved an
	// intervention, possibly this client.
	EventInterventionResolved EventType = "intervention_resolved"

	// EventPong is the heartbeat acknowledgment. No state effect.
	EventPong EventType = "pong"

	// Session-scoped channel events.
	EventConnected EventType = "connected"
	EventStatus    EventType = "status"
	EventProgress  EventType = "progress"
)

// Envelope is the wire shape of every inbound channel message. Payload stays
// raw until the handler for the concrete type decodes it.
type Envelope struct {
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"`
}

// SnapshotPayload is the payload of initial_state and refresh events.
type SnapshotPayload struct {
	PendingCount  int            `json:"pending_count"`
	Interventions []Intervention `json:"interventions"`
}

// InterventionPayload is the payload of an intervention event. The channel
// shape is flatter than the REST Intervention shape.
type InterventionPayload struct {
	InterventionID string `json:"intervention_id"`
	SessionID      string `json:"session_id"`
	UserID         string `json:"user_id,omitempty"`
	Type           string `json:"intervention_type"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	CurrentURL     string `json:"current_url,omitempty"`
}

// ResolvedPayload is the payload of an intervention_resolved event.
type ResolvedPayload struct {
	InterventionID string `json:"intervention_id"`
	Action         string `json:"action"`
}

// ProgressPayload is the payload of session-scoped status, connected and
// progress events.
type ProgressPayload struct {
	SessionID       string `json:"session_id"`
	Status          string `json:"status"`
	CurrentStep     int    `json:"current_step"`
	FieldsFilled    int    `json:"fields_filled"`
	ProgressPercent int    `json:"progress_percent"`
	BlockerType     string `json:"blocker_type,omitempty"`
	Details         struct {
		FieldsFilled int `json:"fields_filled"`
	} `json:"details"`
}

// Outbound control frames. Sent as plain string frames, not JSON envelopes.
const (
	FramePing    = "ping"
	FrameRefresh = "refresh"
)

// CloseSessionNotFound is the application-defined close code the backend
// uses when the requested session does not exist. It must suppress
// auto-reconnect.
const CloseSessionNotFound = 4004
