package protocol

import "time"

// TextDelta is a fragment of generated text streamed by the language backend.
// Final marks the end of the stream for the session's current turn.
type TextDelta struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Final     bool      `json:"final"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// TurnAbort cancels an in-flight spoken turn, e.g. on user interruption.
type TurnAbort struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason,omitempty"`
}

// ListenControl toggles the external speech-input listener around a spoken
// turn. FollowUp indicates the listener should accept input without a fresh
// wake word for the follow-up window.
type ListenControl struct {
	SessionID string    `json:"session_id"`
	Pause     bool      `json:"pause"`
	FollowUp  bool      `json:"follow_up,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TurnStatus reports completion of a spoken turn.
type TurnStatus struct {
	SessionID string    `json:"session_id"`
	TurnID    string    `json:"turn_id"`
	Sentences int       `json:"sentences"`
	Failed    int       `json:"failed"`
	Aborted   bool      `json:"aborted,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript mirrors the final recognizer output published by the external
// listener; the speak runtime only consumes it to detect follow-up input.
type Transcript struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Partial   bool      `json:"partial"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectTextDelta       = "speak.text.delta"
	SubjectTurnAbort       = "speak.turn.abort"
	SubjectTurnDone        = "speak.turn.done"
	SubjectListenControl   = "listen.control"
	SubjectTranscriptFinal = "stt.text.final"
)
