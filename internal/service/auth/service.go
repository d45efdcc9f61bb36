package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/zhouzirui/tecnoaigent/backend/pkg/utils"
)

const (
	SessionCookie = "tecno_session"
	StateCookie   = "tecno_oauth_state"

	stateTTL = 10 * time.Minute
)

// Options configure the sign-in service.
type Options struct {
	Providers    []*Provider
	SessionTTL   time.Duration
	CookieSecure bool
	// DevIdentity, when set, is used for requests without a browser session.
	DevIdentity *Identity
	// HTTPClient is used for the token exchange and userinfo calls.
	HTTPClient *http.Client
}

// Service runs the OAuth2 sign-in flow and resolves browser sessions to identities.
type Service struct {
	providers map[string]*Provider
	order     []*Provider
	ttl       time.Duration
	secure    bool
	dev       *Identity
	client    *http.Client

	mu       sync.Mutex
	sessions map[string]browserSession
	now      func() time.Time
}

type browserSession struct {
	identity  Identity
	expiresAt time.Time
}

// ProviderInfo is what the page needs to render a sign-in button.
type ProviderInfo struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

func NewService(opts Options) *Service {
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	s := &Service{
		providers: make(map[string]*Provider, len(opts.Providers)),
		ttl:       ttl,
		secure:    opts.CookieSecure,
		dev:       opts.DevIdentity,
		client:    opts.HTTPClient,
		sessions:  make(map[string]browserSession),
		now:       time.Now,
	}
	for _, p := range opts.Providers {
		s.providers[p.Name] = p
		s.order = append(s.order, p)
	}
	return s
}

// Providers lists the configured sign-in options in display order.
func (s *Service) Providers() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(s.order))
	for _, p := range s.order {
		out = append(out, ProviderInfo{Name: p.Name, Label: p.Label})
	}
	return out
}

// BeginLogin sets the state cookie and returns the provider's consent URL.
func (s *Service) BeginLogin(w http.ResponseWriter, providerName string) (string, error) {
	p, ok := s.providers[providerName]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, providerName)
	}

	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookie,
		Value:    state,
		Path:     "/auth/",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return p.OAuth.AuthCodeURL(state), nil
}

// CompleteLogin validates the callback, resolves the identity and starts a browser session.
func (s *Service) CompleteLogin(w http.ResponseWriter, r *http.Request, providerName string) (Identity, error) {
	p, ok := s.providers[providerName]
	if !ok {
		return Identity{}, fmt.Errorf("%w: %s", ErrUnknownProvider, providerName)
	}

	cookie, err := r.Cookie(StateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		return Identity{}, ErrStateMismatch
	}
	clearCookie(w, StateCookie, "/auth/", s.secure)

	if msg := r.URL.Query().Get("error"); msg != "" {
		return Identity{}, fmt.Errorf("provider %s: %s", providerName, msg)
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		return Identity{}, ErrMissingCode
	}

	ctx := r.Context()
	if s.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	}
	identity, err := p.fetchIdentity(ctx, code)
	if err != nil {
		return Identity{}, err
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = browserSession{identity: identity, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	log.Printf("[auth] signed in %s via %s", identity.Email, p.Name)
	return identity, nil
}

// Identify resolves the request's browser session.
func (s *Service) Identify(r *http.Request) (Identity, bool) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		s.mu.Lock()
		sess, ok := s.sessions[cookie.Value]
		if ok && !s.now().Before(sess.expiresAt) {
			delete(s.sessions, cookie.Value)
			ok = false
		}
		s.mu.Unlock()
		if ok {
			return sess.identity, true
		}
	}

	if s.dev != nil {
		return *s.dev, true
	}
	return Identity{}, false
}

// Logout ends the browser session.
func (s *Service) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		s.mu.Lock()
		delete(s.sessions, cookie.Value)
		s.mu.Unlock()
	}
	clearCookie(w, SessionCookie, "/", s.secure)
}

// Attach places the identity, if any, in the request context.
func (s *Service) Attach(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := s.Identify(r); ok {
			r = r.WithContext(WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireIdentity answers 401 for requests without a signed-in user.
func (s *Service) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := FromContext(r.Context())
		if !ok {
			if id, ok = s.Identify(r); !ok {
				utils.RespondError(w, http.StatusUnauthorized, ErrNotSignedIn.Error())
				return
			}
			r = r.WithContext(WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// Sweep drops expired browser sessions.
func (s *Service) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if !now.Before(sess.expiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep periodically until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				log.Printf("[auth] swept %d expired sessions", n)
			}
		}
	}
}

func clearCookie(w http.ResponseWriter, name, path string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
