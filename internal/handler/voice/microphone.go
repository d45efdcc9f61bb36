package voice

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrMicrophoneDenied = errors.New("microphone access denied")
	errConnectionLost   = errors.New("voice connection lost")
)

type micAnswer struct {
	granted bool
	reason  string
}

// remoteMicrophone is the page's microphone, driven over the voice websocket.
type remoteMicrophone struct {
	peer    *peer
	answers chan micAnswer
}

func newRemoteMicrophone(p *peer) *remoteMicrophone {
	return &remoteMicrophone{peer: p, answers: make(chan micAnswer, 1)}
}

// Acquire asks the page for the microphone and waits for its answer.
func (m *remoteMicrophone) Acquire(ctx context.Context) error {
	// drop an answer left over from an aborted request
	select {
	case <-m.answers:
	default:
	}

	if err := m.peer.send(outbound{Type: "acquire"}); err != nil {
		return fmt.Errorf("request microphone: %w", err)
	}

	select {
	case answer := <-m.answers:
		if !answer.granted {
			if answer.reason == "" {
				return ErrMicrophoneDenied
			}
			return fmt.Errorf("%w: %s", ErrMicrophoneDenied, answer.reason)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release tells the page to stop its tracks.
func (m *remoteMicrophone) Release() error {
	return m.peer.send(outbound{Type: "release"})
}

func (m *remoteMicrophone) answer(a micAnswer) {
	select {
	case m.answers <- a:
	default:
	}
}
