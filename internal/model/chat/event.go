package chat

// EventType names a session change pushed to subscribers.
type EventType string

const (
	EventMessageAppended EventType = "message_appended"
	EventMessageReplaced EventType = "message_replaced"
	EventState           EventType = "state"
	EventTranscription   EventType = "transcription"
	EventRecording       EventType = "recording"
	EventClosed          EventType = "closed"
)

// Event carries a change and the state right after it.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Message   *Message  `json:"message,omitempty"`
	Snapshot  *Snapshot `json:"snapshot,omitempty"`
	Text      string    `json:"text,omitempty"`
	Error     string    `json:"error,omitempty"`
}
