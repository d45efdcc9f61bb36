package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	authHandler "github.com/zhouzirui/tecnoaigent/backend/internal/handler/auth"
	"github.com/zhouzirui/tecnoaigent/backend/internal/handler/catalog"
	"github.com/zhouzirui/tecnoaigent/backend/internal/handler/chat"
	"github.com/zhouzirui/tecnoaigent/backend/internal/handler/relay"
	"github.com/zhouzirui/tecnoaigent/backend/internal/handler/voice"
	"github.com/zhouzirui/tecnoaigent/backend/internal/handler/web"
	middlewarePkg "github.com/zhouzirui/tecnoaigent/backend/internal/middleware"
	"github.com/zhouzirui/tecnoaigent/backend/internal/model/analytics"
	authService "github.com/zhouzirui/tecnoaigent/backend/internal/service/auth"
	chatService "github.com/zhouzirui/tecnoaigent/backend/internal/service/chat"
	"github.com/zhouzirui/tecnoaigent/backend/pkg/utils"
)

// Deps 路由所需的服务集合
type Deps struct {
	Models       analytics.Store
	Auth         *authService.Service
	Chat         *chatService.Service
	Relay        relay.Backend
	PublicURL    string
	MaxClipBytes int64
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.PublicURL))
	r.Use(deps.Auth.Attach)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	authRoutes := authHandler.New(deps.Auth)
	authRoutes.RegisterRoutes(r)
	web.New(deps.Auth, deps.Models).RegisterRoutes(r)

	r.Route("/api", func(api chi.Router) {
		api.Use(deps.Auth.RequireIdentity)

		authRoutes.RegisterAPIRoutes(api)
		catalog.New(deps.Models).RegisterRoutes(api)
		chat.New(deps.Chat, deps.MaxClipBytes).RegisterRoutes(api)
		voice.New(deps.Chat, deps.MaxClipBytes, deps.PublicURL).RegisterRoutes(api)

		if deps.Relay != nil {
			relay.New(deps.Relay, deps.MaxClipBytes).RegisterRoutes(api)
		}
	})

	return r
}
