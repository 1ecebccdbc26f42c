package readthrough

import (
	"context"
	"fmt"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/clients"
)

// OAuthClientStore is the store surface used for OAuth clients.
type OAuthClientStore interface {
	ListOAuthClients(ctx context.Context, offset, limit int) ([]clients.Client, int64, error)
	GetOAuthClient(ctx context.Context, id int64) (*clients.Client, error)
	CreateOAuthClient(ctx context.Context, c *clients.Client) error
	UpdateOAuthClient(ctx context.Context, id int64, spec clients.Spec) (*clients.Client, error)
	SetOAuthClientActive(ctx context.Context, id int64, active bool) (*clients.Client, error)
	UpdateOAuthClientSecret(ctx context.Context, id int64, secretHash, secretPrefix string) (*clients.Client, error)
	DeleteOAuthClient(ctx context.Context, id int64) error
}

// OAuthClients serves secret-redacted client projections through the cache.
// Only clients.View values are ever cached.
type OAuthClients struct {
	base
	store   OAuthClientStore
	secrets *auth.TokenGenerator
}

// NewOAuthClients creates the OAuth client orchestrator.
func NewOAuthClients(store OAuthClientStore, d Deps) *OAuthClients {
	return &OAuthClients{
		base:    newBase(d, "oauth_clients"),
		store:   store,
		secrets: auth.NewTokenGenerator(auth.ClientSecretPrefix),
	}
}

// List returns one page of clients. Paging parameters are normalized first
// so equivalent requests share a cache key.
func (o *OAuthClients) List(ctx context.Context, page, pageSize int) (clients.ListPage, error) {
	page, pageSize = NormalizePage(page, pageSize)
	key := listingKey(o.keys, EntityOAuthClients, page, pageSize)

	return readThrough(ctx, o.base, EntityOAuthClients, "oauth_clients.list", key,
		func(ctx context.Context) (clients.ListPage, error) {
			items, total, err := o.store.ListOAuthClients(ctx, (page-1)*pageSize, pageSize)
			if err != nil {
				return clients.ListPage{}, err
			}
			return clients.ListPage{
				Items:    clients.Views(items),
				Page:     page,
				PageSize: pageSize,
				Total:    total,
			}, nil
		})
}

// Get returns one client.
func (o *OAuthClients) Get(ctx context.Context, id int64) (*clients.View, error) {
	view, err := readThrough(ctx, o.base, EntityOAuthClients, "oauth_clients.get", o.idKey(id),
		func(ctx context.Context) (clients.View, error) {
			c, err := o.store.GetOAuthClient(ctx, id)
			if err != nil {
				return clients.View{}, err
			}
			return c.View(), nil
		})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// Create registers a client and returns its plaintext secret once.
func (o *OAuthClients) Create(ctx context.Context, spec clients.Spec) (*clients.Credentials, error) {
	c, secret, err := clients.New(spec, o.secrets)
	if err != nil {
		return nil, err
	}
	if err := o.store.CreateOAuthClient(ctx, c); err != nil {
		return nil, err
	}
	o.invalidate(ctx, c.ID)
	return &clients.Credentials{View: c.View(), ClientSecret: secret}, nil
}

// Update replaces the mutable fields of a client.
func (o *OAuthClients) Update(ctx context.Context, id int64, spec clients.Spec) (*clients.View, error) {
	c, err := o.store.UpdateOAuthClient(ctx, id, spec)
	if err != nil {
		return nil, err
	}
	o.invalidate(ctx, id)
	view := c.View()
	return &view, nil
}

// SetActive enables or disables a client.
func (o *OAuthClients) SetActive(ctx context.Context, id int64, active bool) (*clients.View, error) {
	c, err := o.store.SetOAuthClientActive(ctx, id, active)
	if err != nil {
		return nil, err
	}
	o.invalidate(ctx, id)
	view := c.View()
	return &view, nil
}

// RotateSecret issues a new secret; the old one stops working immediately.
func (o *OAuthClients) RotateSecret(ctx context.Context, id int64) (*clients.Credentials, error) {
	secret, hash, prefix, err := o.secrets.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate client secret: %w", err)
	}
	c, err := o.store.UpdateOAuthClientSecret(ctx, id, hash, prefix)
	if err != nil {
		return nil, err
	}
	o.invalidate(ctx, id)
	return &clients.Credentials{View: c.View(), ClientSecret: secret}, nil
}

// Delete removes a client.
func (o *OAuthClients) Delete(ctx context.Context, id int64) error {
	if err := o.store.DeleteOAuthClient(ctx, id); err != nil {
		return err
	}
	o.invalidate(ctx, id)
	return nil
}

func (o *OAuthClients) invalidate(ctx context.Context, id int64) {
	o.inv.Remove(ctx, EntityOAuthClients, o.idKey(id))
	o.inv.RemoveListings(ctx, EntityOAuthClients)
}

func (o *OAuthClients) idKey(id int64) string {
	return o.keys.Key(string(EntityOAuthClients), id)
}
