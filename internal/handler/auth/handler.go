package auth

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	authService "github.com/zhouzirui/tecnoaigent/backend/internal/service/auth"
	"github.com/zhouzirui/tecnoaigent/backend/pkg/utils"
)

// Handler 登录流程的HTTP处理器
type Handler struct {
	authSvc *authService.Service
}

// New 创建登录处理器
func New(authSvc *authService.Service) *Handler {
	return &Handler{authSvc: authSvc}
}

// RegisterRoutes 注册页面级的登录路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/auth/login/{provider}", h.handleLogin)
	r.Get("/auth/callback/{provider}", h.handleCallback)
	r.Post("/auth/logout", h.handleLogout)
}

// RegisterAPIRoutes 注册需要登录的API路由
func (h *Handler) RegisterAPIRoutes(r chi.Router) {
	r.Get("/me", h.handleMe)
}

// handleLogin 跳转到身份提供方
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	target, err := h.authSvc.BeginLogin(w, provider)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// handleCallback 完成授权码交换并回到首页
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if _, err := h.authSvc.CompleteLogin(w, r, provider); err != nil {
		log.Printf("[auth] sign-in via %s failed: %v", provider, err)
		if errors.Is(err, authService.ErrUnknownProvider) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		http.Redirect(w, r, "/?error=signin", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// handleLogout 结束浏览器会话
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.authSvc.Logout(w, r)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleMe 返回当前登录身份
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := authService.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, authService.ErrNotSignedIn.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, id)
}
