// Package identity adapts external OAuth identity providers into the
// account model. Each provider yields a provider-namespaced subject such as
// "github:8412" so identities never collide across providers.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"deadinternet.report/gateway/internal/account"
)

// Provider names accepted in /auth/{provider}/... routes.
const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
)

const (
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	githubUserURL     = "https://api.github.com/user"
	githubEmailsURL   = "https://api.github.com/user/emails"
)

// Provider is one configured OAuth identity provider.
type Provider struct {
	name   string
	config *oauth2.Config
	// fetch resolves an authorized token into a normalized identity.
	fetch func(ctx context.Context, client *http.Client) (account.Identity, error)
}

// Name returns the provider's route name ("google" or "github").
func (p *Provider) Name() string { return p.name }

// AuthCodeURL builds the provider consent URL for the given state.
func (p *Provider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for a normalized identity.
func (p *Provider) Exchange(ctx context.Context, code string) (account.Identity, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return account.Identity{}, fmt.Errorf("identity: exchanging %s code: %w", p.name, err)
	}
	return p.fetch(ctx, p.config.Client(ctx, token))
}

// NewGoogle builds the Google provider. redirectURI must be the absolute
// callback URL registered with the provider.
func NewGoogle(clientID, clientSecret, redirectURI string) *Provider {
	return &Provider{
		name: ProviderGoogle,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		fetch: fetchGoogleIdentity,
	}
}

// NewGitHub builds the GitHub provider.
func NewGitHub(clientID, clientSecret, redirectURI string) *Provider {
	return &Provider{
		name: ProviderGitHub,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		fetch: fetchGitHubIdentity,
	}
}

func fetchGoogleIdentity(ctx context.Context, client *http.Client) (account.Identity, error) {
	var info struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := getJSON(ctx, client, googleUserInfoURL, &info); err != nil {
		return account.Identity{}, err
	}
	if info.Sub == "" {
		return account.Identity{}, fmt.Errorf("identity: google userinfo missing subject")
	}
	return account.Identity{
		Subject:   ProviderGoogle + ":" + info.Sub,
		Email:     info.Email,
		Name:      info.Name,
		AvatarURL: info.Picture,
	}, nil
}

func fetchGitHubIdentity(ctx context.Context, client *http.Client) (account.Identity, error) {
	var user struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, client, githubUserURL, &user); err != nil {
		return account.Identity{}, err
	}
	if user.ID == 0 {
		return account.Identity{}, fmt.Errorf("identity: github user missing id")
	}
	email := user.Email
	if email == "" {
		// Profile email is often hidden; the emails endpoint carries the
		// verified primary address.
		email = fetchGitHubPrimaryEmail(ctx, client)
	}
	name := user.Name
	if name == "" {
		name = user.Login
	}
	return account.Identity{
		Subject:   fmt.Sprintf("%s:%d", ProviderGitHub, user.ID),
		Email:     email,
		Name:      name,
		AvatarURL: user.AvatarURL,
	}, nil
}

func fetchGitHubPrimaryEmail(ctx context.Context, client *http.Client) string {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, client, githubEmailsURL, &emails); err != nil {
		return ""
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	return ""
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("identity: fetching %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("identity: %s returned status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ProviderSet holds the configured providers keyed by route name.
type ProviderSet map[string]*Provider

// Lookup resolves a route name, case-insensitively.
func (s ProviderSet) Lookup(name string) (*Provider, bool) {
	p, ok := s[strings.ToLower(name)]
	return p, ok
}
