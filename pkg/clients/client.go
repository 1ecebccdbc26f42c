// Package clients models OAuth client registrations and their external,
// secret-redacted projection.
package clients

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatehouse/pkg/auth"
)

// Client is the stored OAuth client record.
type Client struct {
	ID           int64     `json:"id"`
	ClientID     string    `json:"client_id"`
	Name         string    `json:"name"`
	RedirectURIs []string  `json:"redirect_uris"`
	Scopes       []string  `json:"scopes"`
	Active       bool      `json:"active"`
	SecretHash   string    `json:"-"`
	SecretPrefix string    `json:"secret_prefix"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// View is the projection handed to callers and written to the cache.
// It never contains secret material beyond the display prefix.
type View struct {
	ID           int64     `json:"id"`
	ClientID     string    `json:"client_id"`
	Name         string    `json:"name"`
	RedirectURIs []string  `json:"redirect_uris"`
	Scopes       []string  `json:"scopes"`
	Active       bool      `json:"active"`
	SecretPrefix string    `json:"secret_prefix"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// View projects the client without its secret hash.
func (c Client) View() View {
	return View{
		ID:           c.ID,
		ClientID:     c.ClientID,
		Name:         c.Name,
		RedirectURIs: nonNil(c.RedirectURIs),
		Scopes:       nonNil(c.Scopes),
		Active:       c.Active,
		SecretPrefix: c.SecretPrefix,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// Views projects a slice of clients.
func Views(cs []Client) []View {
	out := make([]View, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.View())
	}
	return out
}

// ListPage is one page of the client listing.
type ListPage struct {
	Items    []View `json:"items"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Total    int64  `json:"total"`
}

// Credentials is returned exactly once, on create and on secret rotation.
type Credentials struct {
	View
	ClientSecret string `json:"client_secret"`
}

// Spec carries the mutable fields of a client.
type Spec struct {
	Name         string   `json:"name" validate:"required,max=200"`
	RedirectURIs []string `json:"redirect_uris" validate:"omitempty,dive,url"`
	Scopes       []string `json:"scopes" validate:"omitempty,dive,required,max=100"`
}

// Normalize trims names and drops empty or duplicate scopes.
func (s Spec) Normalize() Spec {
	s.Name = strings.TrimSpace(s.Name)
	s.RedirectURIs = dedupe(s.RedirectURIs)
	s.Scopes = dedupe(s.Scopes)
	return s
}

// New builds an active client with a fresh client_id and secret. The
// plaintext secret is returned alongside and is not retained.
func New(spec Spec, gen *auth.TokenGenerator) (*Client, string, error) {
	secret, hash, prefix, err := gen.Generate()
	if err != nil {
		return nil, "", fmt.Errorf("generate client secret: %w", err)
	}
	spec = spec.Normalize()
	return &Client{
		ClientID:     uuid.NewString(),
		Name:         spec.Name,
		RedirectURIs: spec.RedirectURIs,
		Scopes:       spec.Scopes,
		Active:       true,
		SecretHash:   hash,
		SecretPrefix: prefix,
	}, secret, nil
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
