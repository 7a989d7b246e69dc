package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/telecall/internal/core"
	"github.com/dkeye/telecall/internal/domain"
)

const DefaultTTL = time.Hour

var ErrEmptySecret = errors.New("token: empty signing secret")

// Claims are carried by locally minted join tokens.
type Claims struct {
	Channel string    `json:"channel"`
	Role    core.Role `json:"role"`
	jwt.RegisteredClaims
}

// LocalProvisioner mints HS256 join tokens for self-hosted providers that
// share the signing secret.
type LocalProvisioner struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewLocalProvisioner(secret string, ttl time.Duration, issuer string) (*LocalProvisioner, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LocalProvisioner{secret: []byte(secret), ttl: ttl, issuer: issuer, now: time.Now}, nil
}

func (p *LocalProvisioner) RequestToken(ctx context.Context, channel domain.ChannelName, identity domain.Identity, role core.Role) (core.Credential, error) {
	if err := ctx.Err(); err != nil {
		return core.Credential{}, fmt.Errorf("%w: %v", core.ErrUnavailable, err)
	}
	if channel == "" || identity == "" {
		return core.Credential{}, fmt.Errorf("%w: channel and identity required", core.ErrUnauthorized)
	}
	now := p.now()
	exp := now.Add(p.ttl)
	claims := Claims{
		Channel: string(channel),
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   string(identity),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return core.Credential{}, fmt.Errorf("%w: sign: %v", core.ErrUnavailable, err)
	}
	log.Debug().Str("module", "token").Str("channel", string(channel)).Str("identity", string(identity)).Time("exp", exp).Msg("token minted")
	return core.Credential{Token: signed, Channel: channel, Identity: identity, ExpiresAt: exp}, nil
}

// Verify checks a locally minted token and returns its claims.
func Verify(tokenString, secret string) (*Claims, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrUnauthorized, err)
	}
	if !tok.Valid {
		return nil, fmt.Errorf("%w: invalid token", core.ErrUnauthorized)
	}
	return claims, nil
}
