package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"github.com/zhouzirui/tecnoaigent/backend/internal/model/analytics"
	authService "github.com/zhouzirui/tecnoaigent/backend/internal/service/auth"
)

func setupRouter(t *testing.T, opts authService.Options) *chi.Mux {
	t.Helper()
	store, err := analytics.NewMemoryStore(analytics.Seed())
	if err != nil {
		t.Fatalf("NewMemoryStore err: %v", err)
	}
	svc := authService.NewService(opts)

	r := chi.NewRouter()
	r.Use(svc.Attach)
	New(svc, store).RegisterRoutes(r)
	return r
}

func TestIndexSignedOutShowsProviders(t *testing.T) {
	r := setupRouter(t, authService.Options{Providers: []*authService.Provider{
		{Name: "google", Label: "Google", OAuth: &oauth2.Config{}},
		{Name: "azure-ad", Label: "Microsoft", OAuth: &oauth2.Config{}},
	}})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	body := resp.Body.String()
	if !strings.Contains(body, "/auth/login/google") || !strings.Contains(body, "/auth/login/azure-ad") {
		t.Fatalf("sign-in links missing")
	}
	if strings.Contains(body, `id="composer"`) {
		t.Fatalf("chat view must not render for signed-out users")
	}
}

func TestIndexSignedInShowsChat(t *testing.T) {
	r := setupRouter(t, authService.Options{DevIdentity: &authService.Identity{Email: "ana@x.com", Provider: "dev"}})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	body := resp.Body.String()
	if !strings.Contains(body, `id="composer"`) {
		t.Fatalf("chat view missing")
	}
	if !strings.Contains(body, `value="Analytic_Model_Comercial" selected`) {
		t.Fatalf("default model not preselected")
	}
	if !strings.Contains(body, "Generar gráficas") {
		t.Fatalf("feature sidebar missing")
	}
}

func TestStaticAssets(t *testing.T) {
	r := setupRouter(t, authService.Options{})
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}
