package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	authService "github.com/zhouzirui/tecnoaigent/backend/internal/service/auth"
	chatService "github.com/zhouzirui/tecnoaigent/backend/internal/service/chat"
	"github.com/zhouzirui/tecnoaigent/backend/internal/service/voice"
	"github.com/zhouzirui/tecnoaigent/backend/pkg/utils"
)

const heartbeatInterval = 15 * time.Second

// Handler 聊天会话的HTTP处理器
type Handler struct {
	chatSvc      *chatService.Service
	maxClipBytes int64
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, maxClipBytes int64) *Handler {
	if maxClipBytes <= 0 {
		maxClipBytes = 32 << 20
	}
	return &Handler{chatSvc: chatSvc, maxClipBytes: maxClipBytes}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/chat", func(r chi.Router) {
		r.Post("/session", h.handleOpenSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Use(h.requireOwner)
			r.Get("/", h.handleSnapshot)
			r.Put("/draft", h.handleSetDraft)
			r.Put("/model", h.handleSelectModel)
			r.Post("/messages", h.handleSubmit)
			r.Post("/transcribe", h.handleTranscribe)
			r.Get("/events", h.handleEvents)
		})
	})
}

// requireOwner 确认会话存在且属于当前登录用户
func (h *Handler) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := authService.FromContext(r.Context())
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, authService.ErrNotSignedIn.Error())
			return
		}
		if err := h.chatSvc.Authorize(r.Context(), chi.URLParam(r, "sessionID"), id.Email); err != nil {
			respondServiceError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleOpenSession 为当前用户创建会话
func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	id, ok := authService.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, authService.ErrNotSignedIn.Error())
		return
	}

	snapshot, err := h.chatSvc.Open(r.Context(), id.Email, id.Name)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, snapshot)
}

// handleSnapshot 返回会话当前状态
func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.chatSvc.Snapshot(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snapshot)
}

// handleSetDraft 保存输入框草稿
func (h *Handler) handleSetDraft(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snapshot, err := h.chatSvc.SetDraft(r.Context(), chi.URLParam(r, "sessionID"), payload.Text)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snapshot)
}

// handleSelectModel 切换分析模型
func (h *Handler) handleSelectModel(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ModelID string `json:"modelId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.ModelID == "" {
		utils.RespondError(w, http.StatusBadRequest, "modelId is required")
		return
	}

	snapshot, err := h.chatSvc.SelectModel(r.Context(), chi.URLParam(r, "sessionID"), payload.ModelID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snapshot)
}

// handleSubmit 提交问题；wait=true 时等待代理回复
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	exchange, err := h.chatSvc.Submit(r.Context(), chi.URLParam(r, "sessionID"), payload.Text)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if r.URL.Query().Get("wait") != "true" {
		utils.RespondJSON(w, http.StatusAccepted, exchange)
		return
	}

	answer, err := exchange.Wait(r.Context())
	if err != nil && answer.ID == "" {
		// client went away; the exchange still completes in the background
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"userMessage": exchange.UserMessage,
		"answer":      answer,
		"failed":      err != nil,
	})
}

// handleTranscribe 接收录音片段并转写为草稿
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxClipBytes+(1<<20))
	if err := r.ParseMultipartForm(h.maxClipBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	clip := voice.Clip{
		ID:         fmt.Sprintf("upload-%d", time.Now().UnixNano()),
		SessionID:  sessionID,
		Data:       data,
		Format:     voice.InferFormat(header.Filename, header.Header.Get("Content-Type")),
		RecordedAt: time.Now().UTC(),
	}

	text, err := h.chatSvc.Transcribe(r.Context(), sessionID, clip)
	if errors.Is(err, chatService.ErrTranscriptionPending) || errors.Is(err, chatService.ErrSessionNotFound) {
		respondServiceError(w, err)
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusBadGateway, "transcription failed")
		return
	}

	snapshot, err := h.chatSvc.Snapshot(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"transcription": text,
		"snapshot":      snapshot,
	})
}

// handleEvents 以SSE推送会话事件；连接断开后会话在宽限期内仍可重连
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	ctx := r.Context()

	events, cancel, err := h.chatSvc.Subscribe(ctx, sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	defer cancel()

	snapshot, err := h.chatSvc.Snapshot(ctx, sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.SetupSSEHeaders(w)
	log.Printf("[sse] opening event stream for session=%s", sessionID)
	utils.SendSSEEvent(w, flusher, "snapshot", snapshot)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[sse] client left session=%s", sessionID)
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			utils.SendSSEEvent(w, flusher, string(event.Type), event)
		case t := <-ticker.C:
			utils.SendSSEComment(w, flusher, "heartbeat "+t.UTC().Format(time.RFC3339))
		}
	}
}

// respondServiceError 将服务层错误映射为HTTP状态码
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, chatService.ErrSessionNotFound.Error())
	case errors.Is(err, chatService.ErrEmptyMessage),
		errors.Is(err, chatService.ErrUnknownModel),
		errors.Is(err, chatService.ErrIdentityRequired):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrRequestPending),
		errors.Is(err, chatService.ErrTranscriptionPending),
		errors.Is(err, chatService.ErrControlsLocked):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("[chat] request failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
