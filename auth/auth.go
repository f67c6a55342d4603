package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrPairingDisabled    = errors.New("pairing is not configured")
)

// Claims identify a paired client
type Claims struct {
	jwt.RegisteredClaims
}

// AuthModule pairs clients with a shared passphrase and issues HS256 tokens
type AuthModule struct {
	pairingHash []byte
	secret      []byte
	ttl         time.Duration
	issuer      string
	now         func() time.Time
}

func NewAuthModule(pairingHash, secret string, ttl time.Duration, issuer string) *AuthModule {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthModule{
		pairingHash: []byte(pairingHash),
		secret:      []byte(secret),
		ttl:         ttl,
		issuer:      issuer,
		now:         time.Now,
	}
}

// Enabled reports whether a pairing passphrase is configured. Without one the
// API is open.
func (a *AuthModule) Enabled() bool {
	return len(a.pairingHash) > 0
}

// HashPassphrase returns the bcrypt hash to put in jwt.pairingHash
func HashPassphrase(passphrase string) (string, error) {
	if passphrase == "" {
		return "", errors.New("passphrase must not be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(passphrase), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Pair checks the passphrase and returns a signed token with its expiry
func (a *AuthModule) Pair(passphrase string) (string, time.Time, error) {
	if !a.Enabled() {
		return "", time.Time{}, ErrPairingDisabled
	}
	if err := bcrypt.CompareHashAndPassword(a.pairingHash, []byte(passphrase)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return a.generateJWT(uuid.NewString())
}

func (a *AuthModule) generateJWT(clientID string) (string, time.Time, error) {
	now := a.now()
	exp := now.Add(a.ttl)
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   clientID,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// ValidateToken parses and verifies a bearer token
func (a *AuthModule) ValidateToken(token string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
