package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/gatehouse/pkg/clients"
)

const clientColumns = `id, client_id, name, redirect_uris, scopes, active, secret_hash, secret_prefix, created_at, updated_at`

func scanClient(row rowScanner) (clients.Client, error) {
	var c clients.Client
	err := row.Scan(
		&c.ID,
		&c.ClientID,
		&c.Name,
		pq.Array(&c.RedirectURIs),
		pq.Array(&c.Scopes),
		&c.Active,
		&c.SecretHash,
		&c.SecretPrefix,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

// ListOAuthClients returns one window of clients ordered by id plus the total
// count. The page and count queries run concurrently.
func (s *Store) ListOAuthClients(ctx context.Context, offset, limit int) (items []clients.Client, total int64, err error) {
	defer s.observe("list_oauth_clients", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	db := s.reader(ctx)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := db.QueryContext(gctx,
			`SELECT `+clientColumns+` FROM oauth_clients ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
		if err != nil {
			return classify("list oauth clients", err)
		}
		defer rows.Close()

		page := []clients.Client{}
		for rows.Next() {
			c, err := scanClient(rows)
			if err != nil {
				return classify("list oauth clients", err)
			}
			page = append(page, c)
		}
		if err := rows.Err(); err != nil {
			return classify("list oauth clients", err)
		}
		items = page
		return nil
	})

	g.Go(func() error {
		if err := db.QueryRowContext(gctx, `SELECT COUNT(*) FROM oauth_clients`).Scan(&total); err != nil {
			return classify("count oauth clients", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// GetOAuthClient returns one client by id.
func (s *Store) GetOAuthClient(ctx context.Context, id int64) (client *clients.Client, err error) {
	defer s.observe("get_oauth_client", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	c, err := scanClient(s.primary.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM oauth_clients WHERE id = $1`, id))
	if err != nil {
		return nil, classify(fmt.Sprintf("get oauth client %d", id), err)
	}
	return &c, nil
}

// CreateOAuthClient inserts a client built by clients.New.
func (s *Store) CreateOAuthClient(ctx context.Context, c *clients.Client) (err error) {
	defer s.observe("create_oauth_client", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	err = s.primary.QueryRowContext(ctx, `
		INSERT INTO oauth_clients (client_id, name, redirect_uris, scopes, active, secret_hash, secret_prefix)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`,
		c.ClientID,
		c.Name,
		pq.Array(orEmpty(c.RedirectURIs)),
		pq.Array(orEmpty(c.Scopes)),
		c.Active,
		c.SecretHash,
		c.SecretPrefix,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return classify("create oauth client", err)
	}
	return nil
}

// UpdateOAuthClient replaces the mutable fields of a client.
func (s *Store) UpdateOAuthClient(ctx context.Context, id int64, spec clients.Spec) (client *clients.Client, err error) {
	defer s.observe("update_oauth_client", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	spec = spec.Normalize()
	c, err := scanClient(s.primary.QueryRowContext(ctx, `
		UPDATE oauth_clients
		SET name = $2, redirect_uris = $3, scopes = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+clientColumns,
		id, spec.Name, pq.Array(spec.RedirectURIs), pq.Array(spec.Scopes)))
	if err != nil {
		return nil, classify(fmt.Sprintf("update oauth client %d", id), err)
	}
	return &c, nil
}

// SetOAuthClientActive enables or disables a client.
func (s *Store) SetOAuthClientActive(ctx context.Context, id int64, active bool) (client *clients.Client, err error) {
	defer s.observe("set_oauth_client_active", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	c, err := scanClient(s.primary.QueryRowContext(ctx, `
		UPDATE oauth_clients SET active = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+clientColumns, id, active))
	if err != nil {
		return nil, classify(fmt.Sprintf("set oauth client %d active", id), err)
	}
	return &c, nil
}

// UpdateOAuthClientSecret stores a rotated secret hash and display prefix.
func (s *Store) UpdateOAuthClientSecret(ctx context.Context, id int64, secretHash, secretPrefix string) (client *clients.Client, err error) {
	defer s.observe("update_oauth_client_secret", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	c, err := scanClient(s.primary.QueryRowContext(ctx, `
		UPDATE oauth_clients SET secret_hash = $2, secret_prefix = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+clientColumns, id, secretHash, secretPrefix))
	if err != nil {
		return nil, classify(fmt.Sprintf("rotate oauth client %d secret", id), err)
	}
	return &c, nil
}

// DeleteOAuthClient removes a client.
func (s *Store) DeleteOAuthClient(ctx context.Context, id int64) (err error) {
	defer s.observe("delete_oauth_client", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	op := fmt.Sprintf("delete oauth client %d", id)
	res, err := s.primary.ExecContext(ctx, `DELETE FROM oauth_clients WHERE id = $1`, id)
	if err != nil {
		return classify(op, err)
	}
	return affectedOne(op, res)
}

// orEmpty keeps NOT NULL array columns from receiving a NULL.
func orEmpty(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
