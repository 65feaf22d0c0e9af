package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kgcorpus/tagging-console/pkg/backend"
	"github.com/kgcorpus/tagging-console/pkg/models"
)

// Strategy names accepted by NewResolver.
const (
	StrategyWhoAmI = "whoami"
	StrategyToken  = "token"
)

// ErrExpired is returned for a token whose expiry has passed.
var ErrExpired = errors.New("credential expired")

// Resolver turns a stored credential into an identity. Any error means
// there is no session.
type Resolver interface {
	Resolve(ctx context.Context, cred *backend.Credential) (*Identity, error)
}

// WhoAmIClient is the backend call the default strategy uses.
type WhoAmIClient interface {
	Me(ctx context.Context, cred *backend.Credential) (*models.User, error)
}

// WhoAmIResolver asks the backend who the credential belongs to on every
// resolution, so role changes and revocations take effect immediately.
type WhoAmIResolver struct {
	client WhoAmIClient
	logger *zap.Logger
}

// NewWhoAmIResolver creates the server-validated resolver.
func NewWhoAmIResolver(client WhoAmIClient, logger *zap.Logger) *WhoAmIResolver {
	return &WhoAmIResolver{client: client, logger: logger.Named("whoami")}
}

func (r *WhoAmIResolver) Resolve(ctx context.Context, cred *backend.Credential) (*Identity, error) {
	if cred.Empty() {
		return nil, ErrNoSession
	}
	u, err := r.client.Me(ctx, cred)
	if err != nil {
		if !errors.Is(err, backend.ErrUnauthorized) {
			r.logger.Warn("Who-am-I call failed; treating as signed out", zap.Error(err))
		}
		return nil, errors.Join(ErrNoSession, err)
	}
	return &Identity{User: *u, Credential: cred}, nil
}

// TokenResolver decodes the backend's access token locally and trusts its
// role and expiry claims. Without JWKS verification the claims are not
// authenticated, which is weaker than WhoAmIResolver.
type TokenResolver struct {
	validator TokenValidator
	now       func() time.Time
	logger    *zap.Logger
}

// NewTokenResolver creates a resolver over validator.
func NewTokenResolver(validator TokenValidator, logger *zap.Logger) *TokenResolver {
	return &TokenResolver{validator: validator, now: time.Now, logger: logger.Named("token")}
}

func (r *TokenResolver) Resolve(ctx context.Context, cred *backend.Credential) (*Identity, error) {
	if cred == nil || cred.Token == "" {
		return nil, ErrNoSession
	}
	claims, err := r.validator.ValidateToken(cred.Token)
	if err != nil {
		r.logger.Debug("Credential token rejected", zap.Error(err))
		return nil, errors.Join(ErrNoSession, err)
	}

	id := &Identity{User: claims.user(), Credential: cred}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
		if !r.now().Before(id.ExpiresAt) {
			return nil, errors.Join(ErrNoSession, ErrExpired)
		}
	}
	if id.User.Username == "" || id.User.Role == "" {
		return nil, fmt.Errorf("%w: token has no subject or role", ErrNoSession)
	}
	return id, nil
}

// ResolverConfig selects and configures a strategy.
type ResolverConfig struct {
	Strategy      string
	JWKSEndpoints map[string]string
}

// NewResolver builds the configured strategy. The token strategy verifies
// signatures only when JWKS endpoints are configured.
func NewResolver(ctx context.Context, cfg ResolverConfig, client WhoAmIClient, logger *zap.Logger) (Resolver, error) {
	switch cfg.Strategy {
	case "", StrategyWhoAmI:
		return NewWhoAmIResolver(client, logger), nil
	case StrategyToken:
		v, err := NewJWKSClient(ctx, &JWKSConfig{
			EnableVerification: len(cfg.JWKSEndpoints) > 0,
			JWKSEndpoints:      cfg.JWKSEndpoints,
		})
		if err != nil {
			return nil, err
		}
		if len(cfg.JWKSEndpoints) == 0 {
			logger.Warn("Token session strategy without JWKS endpoints: role and expiry claims are trusted unverified")
		}
		return NewTokenResolver(v, logger), nil
	default:
		return nil, fmt.Errorf("unknown auth strategy %q", cfg.Strategy)
	}
}
