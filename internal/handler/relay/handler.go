package relay

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/tecnoaigent/backend/internal/service/agent"
	"github.com/zhouzirui/tecnoaigent/backend/internal/service/voice"
	"github.com/zhouzirui/tecnoaigent/backend/pkg/utils"
)

const (
	msgMissingAudio    = "No se encontró el archivo de audio."
	msgBackendFailed   = "El backend de transcripción falló."
	msgInternalFailure = "Error interno del servidor."
)

// Backend 转发所需的代理客户端能力
type Backend interface {
	Forward(ctx context.Context, params url.Values) (*agent.RawReply, error)
	Transcribe(ctx context.Context, req *agent.TranscriptionRequest) (*agent.TranscriptionResponse, error)
}

// Handler 透传查询与转写请求到远端代理
type Handler struct {
	backend      Backend
	maxClipBytes int64
}

// New 创建转发处理器
func New(backend Backend, maxClipBytes int64) *Handler {
	if maxClipBytes <= 0 {
		maxClipBytes = 32 << 20
	}
	return &Handler{backend: backend, maxClipBytes: maxClipBytes}
}

// RegisterRoutes 注册转发路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/agent", h.handleAgent)
	r.Post("/transcribe", h.handleTranscribe)
}

// handleAgent 原样转发查询参数，返回纯文本
func (h *Handler) handleAgent(w http.ResponseWriter, r *http.Request) {
	raw, err := h.backend.Forward(r.Context(), r.URL.Query())
	if err != nil {
		log.Printf("[relay] agent query failed: %v", err)
		utils.RespondText(w, http.StatusInternalServerError, []byte(msgInternalFailure))
		return
	}
	utils.RespondText(w, raw.Status, raw.Body)
}

// handleTranscribe 转发音频文件到转写服务，成功时原样返回上游JSON
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxClipBytes+(1<<20))
	if err := r.ParseMultipartForm(h.maxClipBytes); err != nil {
		log.Printf("[relay] parse multipart form: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, msgInternalFailure)
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, msgMissingAudio)
		return
	}
	defer file.Close()

	format := voice.InferFormat(header.Filename, header.Header.Get("Content-Type"))
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = voice.Clip{Format: format}.ContentType()
	}

	resp, err := h.backend.Transcribe(r.Context(), &agent.TranscriptionRequest{
		Audio:       file,
		Filename:    header.Filename,
		ContentType: contentType,
	})
	if err != nil {
		var statusErr *agent.StatusError
		switch {
		case errors.As(err, &statusErr):
			message := msgBackendFailed
			if statusErr.Reported && statusErr.Message != "" {
				message = statusErr.Message
			}
			utils.RespondError(w, statusErr.Status, message)
		case errors.Is(err, agent.ErrEmptyAudio):
			utils.RespondError(w, http.StatusBadRequest, msgMissingAudio)
		default:
			log.Printf("[relay] transcription failed format=%s: %v", format, err)
			utils.RespondError(w, http.StatusInternalServerError, msgInternalFailure)
		}
		return
	}

	if len(resp.Body) > 0 {
		utils.RespondRawJSON(w, http.StatusOK, resp.Body)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"transcription": resp.Text})
}
