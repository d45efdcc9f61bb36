package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/tecnoaigent/backend/internal/model/analytics"
	"github.com/zhouzirui/tecnoaigent/backend/pkg/utils"
)

// Handler 分析模型目录的HTTP处理器
type Handler struct {
	models analytics.Store
}

// New 创建目录处理器
func New(models analytics.Store) *Handler {
	return &Handler{models: models}
}

// RegisterRoutes 注册目录相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/models", h.handleListModels)
	r.Get("/features", h.handleListFeatures)
}

// handleListModels 列出可选的分析模型及默认值
func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"default": h.models.Default().ID,
		"models":  h.models.List(),
	})
}

// handleListFeatures 列出侧边栏展示的能力与示例问题
func (h *Handler) handleListFeatures(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.models.Features())
}
