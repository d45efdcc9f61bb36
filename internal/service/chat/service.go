package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/tecnoaigent/backend/internal/model/analytics"
	"github.com/zhouzirui/tecnoaigent/backend/internal/model/chat"
	"github.com/zhouzirui/tecnoaigent/backend/internal/service/agent"
	"github.com/zhouzirui/tecnoaigent/backend/internal/service/voice"
)

// DefaultIdleGrace is how long a session outlives its last event stream.
const DefaultIdleGrace = 30 * time.Second

const (
	PlaceholderText = "Generando la respuesta, por favor espere…"
	ErrorText       = "Lo siento, ocurrió un error al procesar tu consulta. Intenta nuevamente."
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrIdentityRequired     = errors.New("user identity is required")
	ErrEmptyMessage         = errors.New("message is empty")
	ErrRequestPending       = errors.New("a request is already pending")
	ErrTranscriptionPending = errors.New("a transcription is already pending")
	ErrUnknownModel         = errors.New("unknown analytic model")
	ErrControlsLocked       = errors.New("recording is disabled while a request or transcription is pending")
)

// Agent is the remote analytics backend as seen by the controller.
type Agent interface {
	Ask(ctx context.Context, q agent.Query) (agent.Reply, error)
	Transcribe(ctx context.Context, req *agent.TranscriptionRequest) (*agent.TranscriptionResponse, error)
}

// Service owns every open chat session and their request lifecycles.
type Service struct {
	agent     Agent
	models    analytics.Store
	hub       *hub
	idleGrace time.Duration

	mu       sync.RWMutex
	sessions map[string]*sessionState
}

type sessionState struct {
	mu           sync.Mutex
	session      chat.Session
	messages     []chat.Message
	draft        string
	modelID      string
	pending      bool
	transcribing bool
	recording    chat.RecordingStatus

	watchers  int
	idleTimer *time.Timer
}

// Option customizes a Service.
type Option func(*Service)

// WithIdleGrace sets how long a session without event streams survives before it is
// discarded. Zero or less discards it as soon as the last stream ends.
func WithIdleGrace(d time.Duration) Option {
	return func(s *Service) {
		s.idleGrace = d
	}
}

// NewService wires the controller to the agent backend and the model catalog.
func NewService(agentClient Agent, models analytics.Store, opts ...Option) *Service {
	s := &Service{
		agent:     agentClient,
		models:    models,
		hub:       newHub(),
		idleGrace: DefaultIdleGrace,
		sessions:  make(map[string]*sessionState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open starts an empty session for the signed-in user with the default model selected.
func (s *Service) Open(_ context.Context, email, name string) (chat.Snapshot, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return chat.Snapshot{}, ErrIdentityRequired
	}

	st := &sessionState{
		session: chat.Session{
			ID:        uuid.NewString(),
			UserEmail: email,
			UserName:  name,
			CreatedAt: time.Now().UTC(),
		},
		messages:  make([]chat.Message, 0, 16),
		modelID:   s.models.Default().ID,
		recording: chat.RecordingIdle,
	}

	s.mu.Lock()
	s.sessions[st.session.ID] = st
	s.mu.Unlock()

	if s.idleGrace > 0 {
		st.mu.Lock()
		s.armIdleLocked(st)
		st.mu.Unlock()
	}

	log.Printf("[chat] opened session=%s user=%s model=%s", st.session.ID, email, st.modelID)
	return st.snapshot(), nil
}

// Close discards a session and ends its event streams.
func (s *Service) Close(_ context.Context, sessionID string) {
	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if ok {
		st.mu.Lock()
		if st.idleTimer != nil {
			st.idleTimer.Stop()
			st.idleTimer = nil
		}
		s.hub.closeSession(sessionID)
		st.mu.Unlock()
		log.Printf("[chat] closed session=%s", sessionID)
	}
}

// Authorize checks that the session exists and belongs to email.
func (s *Service) Authorize(_ context.Context, sessionID, email string) error {
	st, err := s.state(sessionID)
	if err != nil {
		return err
	}
	if !strings.EqualFold(st.session.UserEmail, email) {
		return ErrSessionNotFound
	}
	return nil
}

// Snapshot returns a copy of the session state.
func (s *Service) Snapshot(_ context.Context, sessionID string) (chat.Snapshot, error) {
	st, err := s.state(sessionID)
	if err != nil {
		return chat.Snapshot{}, err
	}
	return st.snapshot(), nil
}

// Subscribe streams the session's events until cancel is called or the session closes.
// A session whose last stream is cancelled is discarded after the idle grace period
// unless a new stream subscribes first.
func (s *Service) Subscribe(_ context.Context, sessionID string) (<-chan chat.Event, func(), error) {
	st, err := s.state(sessionID)
	if err != nil {
		return nil, nil, err
	}

	st.mu.Lock()
	if _, err := s.state(sessionID); err != nil {
		st.mu.Unlock()
		return nil, nil, err
	}
	st.watchers++
	if st.idleTimer != nil {
		st.idleTimer.Stop()
		st.idleTimer = nil
	}
	events, unsubscribe := s.hub.subscribe(sessionID)
	st.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			unsubscribe()
			s.detach(st)
		})
	}
	return events, cancel, nil
}

func (s *Service) detach(st *sessionState) {
	id := st.session.ID

	st.mu.Lock()
	st.watchers--
	if _, err := s.state(id); err != nil {
		st.mu.Unlock()
		return
	}
	if st.watchers > 0 {
		st.mu.Unlock()
		return
	}
	if s.idleGrace <= 0 {
		st.mu.Unlock()
		s.Close(context.Background(), id)
		return
	}

	s.armIdleLocked(st)
	st.mu.Unlock()
}

// armIdleLocked schedules the session's discard after the idle grace period.
func (s *Service) armIdleLocked(st *sessionState) {
	id := st.session.ID
	var timer *time.Timer
	timer = time.AfterFunc(s.idleGrace, func() {
		st.mu.Lock()
		idle := st.idleTimer == timer && st.watchers == 0
		st.mu.Unlock()
		if idle {
			log.Printf("[chat] no event stream for %s, discarding session=%s", s.idleGrace, id)
			s.Close(context.Background(), id)
		}
	})
	st.idleTimer = timer
}

// SetDraft stores the in-progress input text.
func (s *Service) SetDraft(_ context.Context, sessionID, text string) (chat.Snapshot, error) {
	st, err := s.state(sessionID)
	if err != nil {
		return chat.Snapshot{}, err
	}

	st.mu.Lock()
	st.draft = text
	snap := st.snapshotLocked()
	st.mu.Unlock()

	return snap, nil
}

// SelectModel changes the analytic model used by the next submission.
func (s *Service) SelectModel(_ context.Context, sessionID, modelID string) (chat.Snapshot, error) {
	st, err := s.state(sessionID)
	if err != nil {
		return chat.Snapshot{}, err
	}
	if _, ok := s.models.FindByID(modelID); !ok {
		return chat.Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}

	st.mu.Lock()
	if st.pending {
		st.mu.Unlock()
		return chat.Snapshot{}, ErrRequestPending
	}
	st.modelID = modelID
	snap := st.snapshotLocked()
	st.mu.Unlock()

	s.hub.publish(chat.Event{Type: chat.EventState, SessionID: sessionID, Snapshot: &snap})
	return snap, nil
}

// Exchange tracks one submission from the optimistic placeholder to the final answer.
type Exchange struct {
	UserMessage chat.Message `json:"userMessage"`
	Placeholder chat.Message `json:"placeholder"`

	done   chan struct{}
	answer chat.Message
	err    error
}

// Wait blocks until the placeholder has been replaced and returns the replacement.
// The returned error is the query failure, if any; the answer is then the generic error message.
func (e *Exchange) Wait(ctx context.Context) (chat.Message, error) {
	select {
	case <-e.done:
		return e.answer, e.err
	case <-ctx.Done():
		return chat.Message{}, ctx.Err()
	}
}

// Done is closed once the exchange has resolved.
func (e *Exchange) Done() <-chan struct{} {
	return e.done
}

// Submit sends text to the agent using the session's identity and selected model.
// It appends the user message and a placeholder, clears the draft and returns before the
// agent answers. Empty text or a pending request or transcription leaves the state untouched.
func (s *Service) Submit(ctx context.Context, sessionID, text string) (*Exchange, error) {
	st, err := s.state(sessionID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	switch {
	case strings.TrimSpace(text) == "":
		st.mu.Unlock()
		return nil, ErrEmptyMessage
	case st.pending:
		st.mu.Unlock()
		return nil, ErrRequestPending
	case st.transcribing:
		st.mu.Unlock()
		return nil, ErrTranscriptionPending
	}

	now := time.Now().UTC()
	userMsg := chat.Message{ID: uuid.NewString(), Sender: chat.SenderUser, Text: text, CreatedAt: now}
	placeholder := chat.Message{ID: uuid.NewString(), Sender: chat.SenderAgent, Text: PlaceholderText, Pending: true, CreatedAt: now}

	st.messages = append(st.messages, userMsg, placeholder)
	st.draft = ""
	st.pending = true
	query := agent.Query{UserID: st.session.UserEmail, Message: text, ModelID: st.modelID}
	snap := st.snapshotLocked()
	st.mu.Unlock()

	s.hub.publish(chat.Event{Type: chat.EventMessageAppended, SessionID: sessionID, Message: &userMsg, Snapshot: &snap})
	s.hub.publish(chat.Event{Type: chat.EventMessageAppended, SessionID: sessionID, Message: &placeholder, Snapshot: &snap})

	exchange := &Exchange{UserMessage: userMsg, Placeholder: placeholder, done: make(chan struct{})}
	go s.resolve(context.WithoutCancel(ctx), st, query, exchange)

	return exchange, nil
}

func (s *Service) resolve(ctx context.Context, st *sessionState, query agent.Query, exchange *Exchange) {
	answer := chat.Message{
		ID:        exchange.Placeholder.ID,
		Sender:    chat.SenderAgent,
		CreatedAt: time.Now().UTC(),
	}

	reply, err := s.agent.Ask(ctx, query)
	if err != nil {
		log.Printf("[chat] query failed session=%s model=%s: %v", st.session.ID, query.ModelID, err)
		answer.Text = ErrorText
	} else {
		answer.Text = reply.Text
		answer.AudioURL = reply.AudioURL
		answer.ImageURL = reply.ImageURL
	}

	st.mu.Lock()
	replaced := st.replaceLocked(answer)
	st.pending = false
	snap := st.snapshotLocked()
	st.mu.Unlock()

	if replaced {
		s.hub.publish(chat.Event{Type: chat.EventMessageReplaced, SessionID: st.session.ID, Message: &answer, Snapshot: &snap})
	} else {
		log.Printf("[chat] placeholder %s vanished session=%s", answer.ID, st.session.ID)
		s.hub.publish(chat.Event{Type: chat.EventState, SessionID: st.session.ID, Snapshot: &snap})
	}

	exchange.answer = answer
	exchange.err = err
	close(exchange.done)
}

// Transcribe sends a recorded clip to the transcription endpoint and, on success, makes the
// transcript the new draft. On failure the draft is left as it was.
func (s *Service) Transcribe(ctx context.Context, sessionID string, clip voice.Clip) (string, error) {
	st, err := s.state(sessionID)
	if err != nil {
		return "", err
	}

	st.mu.Lock()
	if st.transcribing {
		st.mu.Unlock()
		return "", ErrTranscriptionPending
	}
	st.transcribing = true
	snap := st.snapshotLocked()
	st.mu.Unlock()
	s.hub.publish(chat.Event{Type: chat.EventState, SessionID: sessionID, Snapshot: &snap})

	resp, err := s.agent.Transcribe(ctx, &agent.TranscriptionRequest{
		SessionID:   sessionID,
		Audio:       bytes.NewReader(clip.Data),
		Filename:    clip.Filename(),
		ContentType: clip.ContentType(),
	})

	st.mu.Lock()
	st.transcribing = false
	if err == nil {
		st.draft = resp.Text
	}
	snap = st.snapshotLocked()
	st.mu.Unlock()

	if err != nil {
		log.Printf("[chat] transcription failed session=%s clip=%s: %v", sessionID, clip.ID, err)
		s.hub.publish(chat.Event{Type: chat.EventTranscription, SessionID: sessionID, Snapshot: &snap, Error: "transcription_failed"})
		return "", fmt.Errorf("transcribe clip: %w", err)
	}

	s.hub.publish(chat.Event{Type: chat.EventTranscription, SessionID: sessionID, Snapshot: &snap, Text: resp.Text})
	return resp.Text, nil
}

// CheckRecordingAllowed reports whether the record control is enabled.
func (s *Service) CheckRecordingAllowed(_ context.Context, sessionID string) error {
	st, err := s.state(sessionID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.pending || st.transcribing {
		return ErrControlsLocked
	}
	return nil
}

// SetRecordingStatus mirrors the capture adapter's status into the session.
func (s *Service) SetRecordingStatus(_ context.Context, sessionID string, status chat.RecordingStatus, cause error) {
	st, err := s.state(sessionID)
	if err != nil {
		return
	}

	st.mu.Lock()
	st.recording = status
	snap := st.snapshotLocked()
	st.mu.Unlock()

	event := chat.Event{Type: chat.EventRecording, SessionID: sessionID, Snapshot: &snap, Text: string(status)}
	if status == chat.RecordingError && cause != nil {
		event.Error = cause.Error()
	}
	s.hub.publish(event)
}

func (s *Service) state(sessionID string) (*sessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return st, nil
}

func (st *sessionState) snapshot() chat.Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snapshotLocked()
}

func (st *sessionState) snapshotLocked() chat.Snapshot {
	return chat.Snapshot{
		SessionID:             st.session.ID,
		UserEmail:             st.session.UserEmail,
		UserName:              st.session.UserName,
		CreatedAt:             st.session.CreatedAt,
		Messages:              append([]chat.Message(nil), st.messages...),
		Draft:                 st.draft,
		ModelID:               st.modelID,
		AwaitingResponse:      st.pending,
		AwaitingTranscription: st.transcribing,
		RecordingStatus:       st.recording,
	}
}

// replaceLocked swaps the message carrying msg.ID, searching from the end.
func (st *sessionState) replaceLocked(msg chat.Message) bool {
	for i := len(st.messages) - 1; i >= 0; i-- {
		if st.messages[i].ID == msg.ID {
			st.messages[i] = msg
			return true
		}
	}
	return false
}
