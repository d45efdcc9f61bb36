package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func newProviderServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "abc" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"email":"Ana@X.com","name":"Ana"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestService(srv *httptest.Server) *Service {
	return NewService(Options{
		Providers: []*Provider{{
			Name:  ProviderGoogle,
			Label: "Google",
			OAuth: &oauth2.Config{
				ClientID:     "client",
				ClientSecret: "secret",
				Endpoint:     oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"},
				RedirectURL:  "http://localhost:8080/auth/callback/google",
			},
			UserInfoURL: srv.URL + "/userinfo",
		}},
		SessionTTL: time.Hour,
		HTTPClient: srv.Client(),
	})
}

func cookieNamed(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLoginFlow(t *testing.T) {
	srv := newProviderServer(t)
	svc := newTestService(srv)

	begin := httptest.NewRecorder()
	consent, err := svc.BeginLogin(begin, ProviderGoogle)
	if err != nil {
		t.Fatalf("BeginLogin err: %v", err)
	}
	stateCookie := cookieNamed(begin.Result().Cookies(), StateCookie)
	if stateCookie == nil {
		t.Fatalf("state cookie not set")
	}
	u, _ := url.Parse(consent)
	if u.Query().Get("state") != stateCookie.Value {
		t.Fatalf("consent url state %q does not match cookie", u.Query().Get("state"))
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/callback/google?code=abc&state="+stateCookie.Value, nil)
	req.AddCookie(stateCookie)
	callback := httptest.NewRecorder()
	identity, err := svc.CompleteLogin(callback, req, ProviderGoogle)
	if err != nil {
		t.Fatalf("CompleteLogin err: %v", err)
	}
	if identity.Email != "ana@x.com" || identity.Name != "Ana" || identity.Provider != ProviderGoogle {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	session := cookieNamed(callback.Result().Cookies(), SessionCookie)
	if session == nil {
		t.Fatalf("session cookie not set")
	}
	next := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	next.AddCookie(session)
	got, ok := svc.Identify(next)
	if !ok || got.Email != "ana@x.com" {
		t.Fatalf("Identify = %+v, %v", got, ok)
	}

	logout := httptest.NewRecorder()
	svc.Logout(logout, next)
	if _, ok := svc.Identify(next); ok {
		t.Fatalf("session should be gone after logout")
	}
}

func TestCompleteLoginStateMismatch(t *testing.T) {
	srv := newProviderServer(t)
	svc := newTestService(srv)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback/google?code=abc&state=forged", nil)
	req.AddCookie(&http.Cookie{Name: StateCookie, Value: "expected"})
	if _, err := svc.CompleteLogin(httptest.NewRecorder(), req, ProviderGoogle); !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("expected ErrStateMismatch, got %v", err)
	}

	noCookie := httptest.NewRequest(http.MethodGet, "/auth/callback/google?code=abc&state=forged", nil)
	if _, err := svc.CompleteLogin(httptest.NewRecorder(), noCookie, ProviderGoogle); !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("expected ErrStateMismatch without cookie, got %v", err)
	}
}

func TestUnknownProvider(t *testing.T) {
	svc := NewService(Options{})
	if _, err := svc.BeginLogin(httptest.NewRecorder(), "github"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestSessionExpires(t *testing.T) {
	svc := NewService(Options{SessionTTL: time.Minute})
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	svc.sessions["s1"] = browserSession{identity: Identity{Email: "ana@x.com"}, expiresAt: base.Add(time.Minute)}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "s1"})
	if _, ok := svc.Identify(req); !ok {
		t.Fatalf("session should be valid")
	}

	svc.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, ok := svc.Identify(req); ok {
		t.Fatalf("session should have expired")
	}
}

func TestRequireIdentity(t *testing.T) {
	svc := NewService(Options{})
	handler := svc.RequireIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestDevIdentity(t *testing.T) {
	svc := NewService(Options{DevIdentity: &Identity{Email: "dev@local", Provider: "dev"}})
	var seen Identity
	handler := svc.Attach(svc.RequireIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/me", nil))
	if seen.Email != "dev@local" {
		t.Fatalf("expected dev identity, got %+v", seen)
	}
}
