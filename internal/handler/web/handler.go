package web

import (
	"embed"
	"html/template"
	"io/fs"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/tecnoaigent/backend/internal/model/analytics"
	authService "github.com/zhouzirui/tecnoaigent/backend/internal/service/auth"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// Handler 渲染聊天页面与静态资源
type Handler struct {
	authSvc *authService.Service
	models  analytics.Store
}

// New 创建页面处理器
func New(authSvc *authService.Service, models analytics.Store) *Handler {
	return &Handler{authSvc: authSvc, models: models}
}

// RegisterRoutes 注册页面路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	r.Get("/", h.handleIndex)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
}

type pageData struct {
	SignedIn  bool
	Identity  authService.Identity
	Providers []authService.ProviderInfo
	Models    []analytics.Model
	Default   string
	Features  []analytics.Feature
	Error     string
}

// handleIndex 未登录时只显示登录入口，登录后显示聊天界面
func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := pageData{Providers: h.authSvc.Providers()}
	if id, ok := authService.FromContext(r.Context()); ok {
		data.SignedIn = true
		data.Identity = id
		data.Models = h.models.List()
		data.Default = h.models.Default().ID
		data.Features = h.models.Features()
	}
	if r.URL.Query().Get("error") == "signin" {
		data.Error = "No se pudo iniciar sesión. Intenta nuevamente."
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := pageTemplate.Execute(w, data); err != nil {
		log.Printf("[web] render page: %v", err)
	}
}
