package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/zhouzirui/tecnoaigent/backend/internal/config"
)

const (
	ProviderGoogle  = "google"
	ProviderAzureAD = "azure-ad"

	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	azureUserInfoURL  = "https://graph.microsoft.com/oidc/userinfo"
)

// Provider is one OAuth2 authorization-code sign-in option.
type Provider struct {
	Name        string
	Label       string
	OAuth       *oauth2.Config
	UserInfoURL string
}

// ProvidersFromConfig builds the providers that have credentials configured.
func ProvidersFromConfig(cfg config.AuthConfig, publicURL string) []*Provider {
	callback := func(name string) string {
		return strings.TrimRight(publicURL, "/") + "/auth/callback/" + name
	}

	var providers []*Provider
	if cfg.Google.Enabled() {
		providers = append(providers, &Provider{
			Name:  ProviderGoogle,
			Label: "Google",
			OAuth: &oauth2.Config{
				ClientID:     cfg.Google.ClientID,
				ClientSecret: cfg.Google.ClientSecret,
				Endpoint:     endpoints.Google,
				RedirectURL:  callback(ProviderGoogle),
				Scopes:       []string{"openid", "email", "profile"},
			},
			UserInfoURL: googleUserInfoURL,
		})
	}
	if cfg.AzureAD.Enabled() {
		providers = append(providers, &Provider{
			Name:  ProviderAzureAD,
			Label: "Microsoft",
			OAuth: &oauth2.Config{
				ClientID:     cfg.AzureAD.ClientID,
				ClientSecret: cfg.AzureAD.ClientSecret,
				Endpoint:     endpoints.AzureAD(cfg.AzureAD.TenantID),
				RedirectURL:  callback(ProviderAzureAD),
				Scopes:       []string{"openid", "email", "profile", "User.Read"},
			},
			UserInfoURL: azureUserInfoURL,
		})
	}
	return providers
}

// fetchIdentity exchanges the code and reads the OIDC userinfo document.
func (p *Provider) fetchIdentity(ctx context.Context, code string) (Identity, error) {
	token, err := p.OAuth.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("build userinfo request: %w", err)
	}
	resp, err := p.OAuth.Client(ctx, token).Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Identity{}, fmt.Errorf("read userinfo: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}

	// Azure AD accounts without a mail attribute only carry the UPN.
	info := gjson.ParseBytes(body)
	email := firstString(info, "email", "preferred_username", "upn")
	if email == "" {
		return Identity{}, ErrNoEmail
	}

	return Identity{
		Email:    strings.ToLower(email),
		Name:     firstString(info, "name", "given_name"),
		Provider: p.Name,
	}, nil
}

func firstString(doc gjson.Result, paths ...string) string {
	for _, path := range paths {
		if v := strings.TrimSpace(doc.Get(path).String()); v != "" {
			return v
		}
	}
	return ""
}
