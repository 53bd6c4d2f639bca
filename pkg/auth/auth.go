package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/pkg/errors"
	"github.com/taji-labs/signing-service/pkg/config"
	"go.uber.org/zap"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

type TokenVerifierInterface interface {
	VerifyToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims is what the server keeps from a verified token, for logging only.
type Claims struct {
	Subject string
	Issuer  string
}

type BearerVerifier struct {
	logger   *zap.Logger
	keySet   jwk.Set
	issuer   string
	audience string
}

var _ TokenVerifierInterface = (*BearerVerifier)(nil)

// NewBearerVerifier fetches the JWKS once at startup and keeps it refreshed in the
// background for the lifetime of ctx.
func NewBearerVerifier(ctx context.Context, logger *zap.Logger, cfg config.AuthConfig) (*BearerVerifier, error) {
	refresh := cfg.RefreshInterval
	if refresh <= 0 {
		refresh = config.DefaultRefreshInterval
	}

	logger.Sugar().Debugw("Creating JWK cache", "jwks_url", cfg.JWKSURL, "refresh_interval", refresh)
	keySet, err := NewJWKCache(ctx, cfg.JWKSURL, refresh)
	if err != nil {
		return nil, err
	}
	return NewBearerVerifierWithKeySet(logger, keySet, cfg.Issuer, cfg.Audience), nil
}

// NewBearerVerifierWithKeySet verifies against a fixed key set. Empty issuer or
// audience skips that check.
func NewBearerVerifierWithKeySet(logger *zap.Logger, keySet jwk.Set, issuer, audience string) *BearerVerifier {
	return &BearerVerifier{
		logger:   logger.With(zap.String("component", "bearer_verifier")),
		keySet:   keySet,
		issuer:   issuer,
		audience: audience,
	}
}

func (bv *BearerVerifier) VerifyToken(ctx context.Context, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParseOption{
		jwt.WithKeySet(bv.keySet),
		jwt.WithValidate(true),
	}
	if bv.issuer != "" {
		opts = append(opts, jwt.WithIssuer(bv.issuer))
	}
	if bv.audience != "" {
		opts = append(opts, jwt.WithAudience(bv.audience))
	}

	token, err := jwt.Parse([]byte(tokenString), opts...)
	if err != nil {
		bv.logger.Sugar().Debugw("Token verification failed", "error", err)
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}

	claims := &Claims{}
	if sub, ok := token.Subject(); ok {
		claims.Subject = sub
	}
	if iss, ok := token.Issuer(); ok {
		claims.Issuer = iss
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

func NewJWKCache(ctx context.Context, jwkUrl string, refreshInterval time.Duration) (jwk.Set, error) {
	cache, err := jwk.NewCache(ctx, httprc.NewClient())
	if err != nil {
		return nil, fmt.Errorf("failed to create jwk cache: %w", err)
	}

	err = cache.Register(ctx, jwkUrl, jwk.WithConstantInterval(refreshInterval))
	if err != nil {
		return nil, fmt.Errorf("failed to register jwk location: %w", err)
	}

	// fetch once on startup
	_, err = cache.Refresh(ctx, jwkUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch on startup: %w", err)
	}

	return cache.CachedSet(jwkUrl)
}
