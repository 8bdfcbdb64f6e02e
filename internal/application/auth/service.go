package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/trade-hub/trade-hub/internal/domain/conversation"
	"github.com/trade-hub/trade-hub/internal/domain/fault"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the registered claims of a party token. Subject is the party identity.
type Claims struct {
	jwt.RegisteredClaims
}

// Service issues and verifies HS256 party tokens.
type Service struct {
	secret []byte
	issuer string
	logger zerolog.Logger
}

// NewService creates an auth service.
func NewService(secret []byte, issuer string, logger zerolog.Logger) *Service {
	return &Service{
		secret: secret,
		issuer: issuer,
		logger: logger.With().Str("service", "auth").Logger(),
	}
}

// Issue mints a token for party that expires after ttl.
func (s *Service) Issue(party string, ttl time.Duration) (string, error) {
	if err := conversation.ValidateParty(party); err != nil {
		return "", err
	}
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   party,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Authenticate verifies a token and returns the party it was issued to.
func (s *Service) Authenticate(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", fault.Unauthorized(ErrMissingToken)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		s.logger.Debug().Err(err).Msg("token rejected")
		return "", fault.Unauthorized(ErrInvalidToken)
	}
	if err := conversation.ValidateParty(claims.Subject); err != nil {
		return "", fault.Unauthorized(ErrInvalidToken)
	}
	return claims.Subject, nil
}
