package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/platinummonkey/gatehouse/pkg/rbac"
	"github.com/platinummonkey/gatehouse/pkg/storage"
)

var (
	// ErrInvalidCredentials is returned when a bearer credential is not
	// recognised by an authenticator.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

// Authenticator turns a bearer credential into a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (*rbac.Principal, error)
}

// TokenLookup resolves the owner of an API token by its sha256 hash.
type TokenLookup interface {
	UserIDForToken(ctx context.Context, tokenHash string) (int64, error)
}

// SubjectLookup resolves a user by external identity subject.
type SubjectLookup interface {
	UserIDForSubject(ctx context.Context, subject string) (int64, error)
}

// APITokenAuthenticator accepts opaque gatehouse API tokens.
type APITokenAuthenticator struct {
	store     TokenLookup
	generator *TokenGenerator
}

// NewAPITokenAuthenticator creates an authenticator for APITokenPrefix tokens.
func NewAPITokenAuthenticator(store TokenLookup) *APITokenAuthenticator {
	return &APITokenAuthenticator{
		store:     store,
		generator: NewTokenGenerator(APITokenPrefix),
	}
}

// Authenticate looks the token up by hash. Malformed, unknown, revoked and
// expired tokens all return ErrInvalidCredentials.
func (a *APITokenAuthenticator) Authenticate(ctx context.Context, credential string) (*rbac.Principal, error) {
	if err := a.generator.ValidateFormat(credential); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}

	userID, err := a.store.UserIDForToken(ctx, HashToken(credential))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup api token: %w", err)
	}
	return &rbac.Principal{UserID: userID, Subject: fmt.Sprintf("token:%d", userID)}, nil
}

// IDTokenVerifier verifies a raw OIDC ID token. *oidc.IDTokenVerifier
// implements it.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// OIDCAuthenticator accepts ID tokens from a single issuer and maps the
// subject claim to a local user.
type OIDCAuthenticator struct {
	verifier IDTokenVerifier
	store    SubjectLookup
}

// NewOIDCAuthenticator discovers the issuer and builds a verifier for clientID.
func NewOIDCAuthenticator(ctx context.Context, issuerURL, clientID string, store SubjectLookup) (*OIDCAuthenticator, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})
	return NewOIDCAuthenticatorWithVerifier(verifier, store), nil
}

// NewOIDCAuthenticatorWithVerifier uses an existing verifier.
func NewOIDCAuthenticatorWithVerifier(verifier IDTokenVerifier, store SubjectLookup) *OIDCAuthenticator {
	return &OIDCAuthenticator{verifier: verifier, store: store}
}

// Authenticate verifies the ID token signature, audience and expiry, then
// resolves the subject. Unknown subjects are not provisioned.
func (a *OIDCAuthenticator) Authenticate(ctx context.Context, credential string) (*rbac.Principal, error) {
	// JWTs always carry two dots; anything else belongs to another scheme.
	if strings.Count(credential, ".") != 2 {
		return nil, ErrInvalidCredentials
	}

	token, err := a.verifier.Verify(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}

	userID, err := a.store.UserIDForSubject(ctx, token.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown subject", ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("lookup subject: %w", err)
	}
	return &rbac.Principal{UserID: userID, Subject: token.Subject}, nil
}

// Chain tries each authenticator in order. The first one that does not
// reject the credential as invalid decides the outcome.
type Chain []Authenticator

// Authenticate implements Authenticator.
func (c Chain) Authenticate(ctx context.Context, credential string) (*rbac.Principal, error) {
	for _, a := range c {
		p, err := a.Authenticate(ctx, credential)
		if errors.Is(err, ErrInvalidCredentials) {
			continue
		}
		return p, err
	}
	return nil, ErrInvalidCredentials
}
