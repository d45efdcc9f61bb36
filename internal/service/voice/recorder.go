package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/tecnoaigent/backend/internal/model/chat"
)

var (
	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("not recording")
	ErrClipTooLarge     = errors.New("audio clip too large")
	ErrEmptyClip        = errors.New("no audio captured")
)

// Microphone is the capture device. Acquire asks for access; Release gives it back.
type Microphone interface {
	Acquire(ctx context.Context) error
	Release() error
}

// Clip is a finished recording handed to the caller for transcription.
type Clip struct {
	ID         string
	SessionID  string
	Data       []byte
	Format     string
	RecordedAt time.Time
}

// Filename names the clip for a multipart upload.
func (c Clip) Filename() string {
	format := c.Format
	if format == "" {
		format = "webm"
	}
	return fmt.Sprintf("%s.%s", c.ID, format)
}

// ContentType is the MIME type matching the clip format.
func (c Clip) ContentType() string {
	switch c.Format {
	case "wav":
		return "audio/wav"
	case "mp3":
		return "audio/mpeg"
	case "ogg":
		return "audio/ogg"
	case "m4a", "mp4":
		return "audio/mp4"
	case "", "webm":
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}

// Options configure a Recorder.
type Options struct {
	SessionID string
	MaxBytes  int
	// OnStatus observes every status change.
	OnStatus func(chat.RecordingStatus, error)
	// OnClip receives the clip after a successful Stop.
	OnClip func(Clip)
}

// Recorder toggles microphone capture and buffers audio into a clip.
type Recorder struct {
	mic  Microphone
	opts Options

	mu       sync.Mutex
	status   chat.RecordingStatus
	lastErr  error
	buffer   bytes.Buffer
	format   string
	acquired bool
}

// NewRecorder creates an idle recorder over mic.
func NewRecorder(mic Microphone, opts Options) *Recorder {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 32 << 20
	}
	return &Recorder{mic: mic, opts: opts, status: chat.RecordingIdle}
}

// Status returns the current status.
func (r *Recorder) Status() chat.RecordingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Err returns the failure behind the error status, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Start requests the microphone and begins recording. Device failures move the recorder to
// the error status and are not returned; only a start while busy is an error.
func (r *Recorder) Start(ctx context.Context, format string) error {
	r.mu.Lock()
	if r.status.Active() {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	r.buffer.Reset()
	r.format = format
	r.lastErr = nil
	r.setStatusLocked(chat.RecordingAcquiring)
	r.mu.Unlock()

	err := r.mic.Acquire(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != chat.RecordingAcquiring {
		// aborted while waiting for the device
		if err == nil {
			r.releaseLocked(true)
		}
		return nil
	}
	if err != nil {
		log.Printf("[voice] microphone unavailable session=%s: %v", r.opts.SessionID, err)
		r.lastErr = err
		r.setStatusLocked(chat.RecordingError)
		return nil
	}

	r.acquired = true
	r.setStatusLocked(chat.RecordingRecording)
	return nil
}

// Write appends captured audio. Overflowing the size cap aborts the recording.
func (r *Recorder) Write(chunk []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != chat.RecordingRecording {
		return ErrNotRecording
	}
	if r.buffer.Len()+len(chunk) > r.opts.MaxBytes {
		r.failLocked(ErrClipTooLarge)
		return ErrClipTooLarge
	}
	r.buffer.Write(chunk)
	return nil
}

// Stop finalizes the recording, releases the microphone and hands the clip to OnClip.
func (r *Recorder) Stop() (Clip, error) {
	r.mu.Lock()
	if r.status != chat.RecordingRecording {
		r.mu.Unlock()
		return Clip{}, ErrNotRecording
	}

	data := append([]byte(nil), r.buffer.Bytes()...)
	r.buffer.Reset()
	r.releaseLocked(false)

	if len(data) == 0 {
		r.lastErr = ErrEmptyClip
		r.setStatusLocked(chat.RecordingStopped)
		r.mu.Unlock()
		return Clip{}, ErrEmptyClip
	}

	clip := Clip{
		ID:         uuid.NewString(),
		SessionID:  r.opts.SessionID,
		Data:       data,
		Format:     r.format,
		RecordedAt: time.Now().UTC(),
	}
	r.setStatusLocked(chat.RecordingStopped)
	onClip := r.opts.OnClip
	r.mu.Unlock()

	log.Printf("[voice] clip finalized session=%s clip=%s bytes=%d", clip.SessionID, clip.ID, len(clip.Data))
	if onClip != nil {
		onClip(clip)
	}
	return clip, nil
}

// Abort drops any captured audio, releases the microphone and moves to the error status.
// Aborting an idle recorder only releases a still-held device.
func (r *Recorder) Abort(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.status.Active() {
		r.releaseLocked(false)
		return
	}
	r.failLocked(err)
}

func (r *Recorder) failLocked(err error) {
	r.buffer.Reset()
	r.releaseLocked(false)
	r.lastErr = err
	r.setStatusLocked(chat.RecordingError)
}

func (r *Recorder) releaseLocked(force bool) {
	if !r.acquired && !force {
		return
	}
	r.acquired = false
	if err := r.mic.Release(); err != nil {
		log.Printf("[voice] release microphone session=%s: %v", r.opts.SessionID, err)
	}
}

func (r *Recorder) setStatusLocked(status chat.RecordingStatus) {
	r.status = status
	if r.opts.OnStatus != nil {
		r.opts.OnStatus(status, r.lastErr)
	}
}
