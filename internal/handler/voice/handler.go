package voice

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/tecnoaigent/backend/internal/model/chat"
	authService "github.com/zhouzirui/tecnoaigent/backend/internal/service/auth"
	chatService "github.com/zhouzirui/tecnoaigent/backend/internal/service/chat"
	voiceService "github.com/zhouzirui/tecnoaigent/backend/internal/service/voice"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Handler 语音采集WebSocket处理器
type Handler struct {
	chatSvc      *chatService.Service
	maxClipBytes int
	upgrader     websocket.Upgrader
}

// New 创建语音处理器；allowedOrigin 为空时不校验来源
func New(chatSvc *chatService.Service, maxClipBytes int64, allowedOrigin string) *Handler {
	return &Handler{
		chatSvc:      chatSvc,
		maxClipBytes: int(maxClipBytes),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "" || origin == "" || origin == allowedOrigin
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/voice/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type    string `json:"type"`
	Format  string `json:"format,omitempty"`
	Data    []byte `json:"data,omitempty"`
	Granted bool   `json:"granted,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type outbound struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Status    string `json:"status,omitempty"`
	Text      string `json:"text,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// peer serializes writes to one websocket connection.
type peer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (p *peer) send(msg outbound) error {
	msg.Timestamp = time.Now().Unix()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return p.conn.WriteJSON(msg)
}

func (p *peer) ping() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// handleWebSocket 处理一次录音连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	id, ok := authService.FromContext(r.Context())
	if !ok {
		http.Error(w, authService.ErrNotSignedIn.Error(), http.StatusUnauthorized)
		return
	}
	if err := h.chatSvc.Authorize(r.Context(), sessionID, id.Email); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[voice] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	c := &voiceConn{
		handler:   h,
		sessionID: sessionID,
		peer:      &peer{conn: conn},
	}
	c.mic = newRemoteMicrophone(c.peer)
	c.recorder = voiceService.NewRecorder(c.mic, voiceService.Options{
		SessionID: sessionID,
		MaxBytes:  h.maxClipBytes,
		OnStatus:  c.onStatus,
		OnClip:    func(clip voiceService.Clip) { c.transcribe(ctx, clip) },
	})

	log.Printf("[voice] new connection for session: %s", sessionID)

	conn.SetReadLimit(int64(h.maxClipBytes) + 1<<16)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go c.pingLoop(ctx)
	c.peer.send(outbound{Type: "connected", SessionID: sessionID, Status: string(c.recorder.Status())})

	c.readLoop(ctx)

	// the microphone must not outlive the connection
	cancel()
	c.recorder.Abort(errConnectionLost)
	c.wg.Wait()
	h.chatSvc.SetRecordingStatus(context.Background(), sessionID, chat.RecordingIdle, nil)
	log.Printf("[voice] connection closed for session: %s", sessionID)
}

type voiceConn struct {
	handler   *Handler
	sessionID string
	peer      *peer
	mic       *remoteMicrophone
	recorder  *voiceService.Recorder
	wg        sync.WaitGroup
}

func (c *voiceConn) readLoop(ctx context.Context) {
	for {
		kind, data, err := c.peer.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[voice] read error: %v", err)
			}
			return
		}
		c.peer.conn.SetReadDeadline(time.Now().Add(readTimeout))

		if kind == websocket.BinaryMessage {
			c.handleAudio(data)
			continue
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("invalid message")
			continue
		}
		c.handleMessage(ctx, &msg)
	}
}

func (c *voiceConn) handleMessage(ctx context.Context, msg *inboundMessage) {
	switch msg.Type {
	case "start":
		c.handleStart(ctx, msg.Format)
	case "audio":
		c.handleAudio(msg.Data)
	case "stop":
		c.handleStop()
	case "mic":
		c.mic.answer(micAnswer{granted: msg.Granted, reason: msg.Reason})
	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

func (c *voiceConn) handleStart(ctx context.Context, format string) {
	if err := c.handler.chatSvc.CheckRecordingAllowed(ctx, c.sessionID); err != nil {
		c.sendError(err.Error())
		return
	}
	if c.recorder.Status().Active() {
		c.sendError(voiceService.ErrAlreadyRecording.Error())
		return
	}

	// Start blocks until the page answers the acquire frame, which arrives on this read loop.
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.recorder.Start(ctx, format); err != nil {
			c.sendError(err.Error())
		}
	}()
}

func (c *voiceConn) handleAudio(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	if err := c.recorder.Write(chunk); err != nil {
		c.sendError(err.Error())
	}
}

func (c *voiceConn) handleStop() {
	if _, err := c.recorder.Stop(); err != nil {
		c.sendError(err.Error())
	}
}

func (c *voiceConn) onStatus(status chat.RecordingStatus, cause error) {
	c.handler.chatSvc.SetRecordingStatus(context.Background(), c.sessionID, status, cause)

	msg := outbound{Type: "status", SessionID: c.sessionID, Status: string(status)}
	if status == chat.RecordingError && cause != nil {
		msg.Message = cause.Error()
	}
	if err := c.peer.send(msg); err != nil && !errors.Is(cause, errConnectionLost) {
		log.Printf("[voice] write status failed: %v", err)
	}
}

func (c *voiceConn) transcribe(ctx context.Context, clip voiceService.Clip) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		text, err := c.handler.chatSvc.Transcribe(ctx, c.sessionID, clip)
		if err != nil {
			c.peer.send(outbound{Type: "error", SessionID: c.sessionID, Message: "transcription_failed"})
			return
		}
		c.peer.send(outbound{Type: "transcription", SessionID: c.sessionID, Text: text})
	}()
}

func (c *voiceConn) sendError(message string) {
	if err := c.peer.send(outbound{Type: "error", SessionID: c.sessionID, Message: message}); err != nil {
		log.Printf("[voice] write error failed: %v", err)
	}
}

// pingLoop 定期发送ping消息
func (c *voiceConn) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.peer.ping(); err != nil {
				return
			}
		}
	}
}
