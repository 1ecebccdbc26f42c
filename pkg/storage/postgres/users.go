package postgres

import (
	"context"
	"fmt"
	"time"
)

// UserIDForToken resolves a live API token hash to its owner.
func (s *Store) UserIDForToken(ctx context.Context, tokenHash string) (userID int64, err error) {
	defer s.observe("user_id_for_token", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	err = s.primary.QueryRowContext(ctx, `
		SELECT user_id
		FROM api_tokens
		WHERE token_hash = $1
		  AND revoked_at IS NULL
		  AND (expires_at IS NULL OR expires_at > NOW())
	`, tokenHash).Scan(&userID)
	if err != nil {
		return 0, classify("user for token", err)
	}
	return userID, nil
}

// UserIDForSubject resolves an identity provider subject to a user id.
func (s *Store) UserIDForSubject(ctx context.Context, subject string) (userID int64, err error) {
	defer s.observe("user_id_for_subject", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	err = s.primary.QueryRowContext(ctx, `SELECT id FROM users WHERE subject = $1`, subject).Scan(&userID)
	if err != nil {
		return 0, classify("user for subject", err)
	}
	return userID, nil
}

// EnsureUser creates a user for subject if missing and returns its id.
func (s *Store) EnsureUser(ctx context.Context, subject, email string) (userID int64, err error) {
	defer s.observe("ensure_user", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	err = s.primary.QueryRowContext(ctx, `
		INSERT INTO users (subject, email)
		VALUES ($1, $2)
		ON CONFLICT (subject) DO UPDATE SET email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email)
		RETURNING id
	`, subject, email).Scan(&userID)
	if err != nil {
		return 0, classify("ensure user "+subject, err)
	}
	return userID, nil
}

// CreateAPIToken stores the hash of a newly issued API token.
func (s *Store) CreateAPIToken(ctx context.Context, userID int64, name, tokenHash, tokenPrefix string, expiresAt *time.Time) (id int64, err error) {
	defer s.observe("create_api_token", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	err = s.primary.QueryRowContext(ctx, `
		INSERT INTO api_tokens (user_id, name, token_hash, token_prefix, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, userID, name, tokenHash, tokenPrefix, expiresAt).Scan(&id)
	if err != nil {
		return 0, classify(fmt.Sprintf("create api token for user %d", userID), err)
	}
	return id, nil
}

// AssignUserRole adds a membership; assigning an existing one is a no-op.
// A missing user or role is storage.ErrConflict.
func (s *Store) AssignUserRole(ctx context.Context, userID, roleID int64) (err error) {
	defer s.observe("assign_user_role", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err = s.primary.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID, roleID)
	if err != nil {
		return classify(fmt.Sprintf("assign role %d to user %d", roleID, userID), err)
	}
	return nil
}

// RevokeUserRole removes a membership.
func (s *Store) RevokeUserRole(ctx context.Context, userID, roleID int64) (err error) {
	defer s.observe("revoke_user_role", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	op := fmt.Sprintf("revoke role %d from user %d", roleID, userID)
	res, err := s.primary.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return classify(op, err)
	}
	return affectedOne(op, res)
}

// AssignUserRoleByName adds a membership by role name. Used by seeding.
func (s *Store) AssignUserRoleByName(ctx context.Context, userID int64, roleName string) (err error) {
	defer s.observe("assign_user_role", time.Now(), &err)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err = s.primary.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role_id)
		SELECT $1, id FROM roles WHERE name = $2
		ON CONFLICT DO NOTHING
	`, userID, roleName)
	if err != nil {
		return classify(fmt.Sprintf("assign role %s to user %d", roleName, userID), err)
	}
	return nil
}
