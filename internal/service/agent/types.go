package agent

import (
	"errors"
	"fmt"
	"io"
)

var (
	ErrMalformedReply = errors.New("malformed agent reply")
	ErrEmptyAudio     = errors.New("audio clip is empty")
)

// Query is one question sent to the analytics agent.
type Query struct {
	UserID  string `json:"idagente"`
	Message string `json:"msg"`
	ModelID string `json:"view_name"`
}

// RawReply is the query endpoint's answer before normalization.
type RawReply struct {
	Status      int
	ContentType string
	Body        []byte
}

// Reply is the normalized answer, independent of the wire contract.
type Reply struct {
	Text     string `json:"responseText"`
	AudioURL string `json:"audioUrl,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// TranscriptionRequest carries one recorded clip to the transcription endpoint.
type TranscriptionRequest struct {
	SessionID   string    `json:"sessionId"`
	Audio       io.Reader `json:"-"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
}

// TranscriptionResponse is the transcription endpoint's successful answer.
type TranscriptionResponse struct {
	SessionID string `json:"sessionId,omitempty"`
	Text      string `json:"transcription"`
	// Body is the endpoint's JSON answer as received.
	Body []byte `json:"-"`
}

// StatusError reports a non-2xx answer from the backend.
type StatusError struct {
	Status  int
	Message string
	// Reported is set when Message came from the backend's "error" field.
	Reported bool
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("agent backend returned status %d", e.Status)
	}
	return fmt.Sprintf("agent backend returned status %d: %s", e.Status, e.Message)
}
