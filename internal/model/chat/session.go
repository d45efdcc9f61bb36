package chat

import "time"

// RecordingStatus mirrors the voice capture lifecycle.
type RecordingStatus string

const (
	RecordingIdle      RecordingStatus = "idle"
	RecordingAcquiring RecordingStatus = "acquiring"
	RecordingRecording RecordingStatus = "recording"
	RecordingStopped   RecordingStatus = "stopped"
	RecordingError     RecordingStatus = "error"
)

// Active reports whether the microphone is held or being requested.
func (s RecordingStatus) Active() bool {
	return s == RecordingAcquiring || s == RecordingRecording
}

// Session captures a page-lifetime conversation owned by one identity.
type Session struct {
	ID        string    `json:"id"`
	UserEmail string    `json:"userEmail"`
	UserName  string    `json:"userName,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Snapshot is a point-in-time copy of a session's state.
type Snapshot struct {
	SessionID             string          `json:"sessionId"`
	UserEmail             string          `json:"userEmail"`
	UserName              string          `json:"userName,omitempty"`
	CreatedAt             time.Time       `json:"createdAt"`
	Messages              []Message       `json:"messages"`
	Draft                 string          `json:"draft"`
	ModelID               string          `json:"modelId"`
	AwaitingResponse      bool            `json:"awaitingResponse"`
	AwaitingTranscription bool            `json:"awaitingTranscription"`
	RecordingStatus       RecordingStatus `json:"recordingStatus"`
}
