package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod names the accepted access-token algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

var (
	// ErrMissingTokenID is returned when a verified token carries no jti.
	ErrMissingTokenID = errors.New("jwt: token has no jti")
	// ErrMissingExpiry is returned when a verified token carries no exp.
	ErrMissingExpiry = errors.New("jwt: token has no exp")
)

// Config describes how access tokens are verified.
type Config struct {
	SigningMethod SigningMethod
	// Secret is the HS256 shared key.
	Secret []byte
	// PublicKey is a raw or PEM ed25519 public key.
	PublicKey  []byte
	VerifyKeys map[string][]byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
}

// RevocationClaims is what the blacklist needs from an access token.
type RevocationClaims struct {
	TokenID   string
	Subject   string
	ExpiresAt time.Time
}

// Verifier parses access tokens. It is safe for concurrent use.
type Verifier struct {
	config  Config
	method  jwt.SigningMethod
	options []jwt.ParserOption
}

// NewVerifier validates cfg and returns a [Verifier].
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	var method jwt.SigningMethod
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.Secret) == 0 && len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("hs256 requires a secret or verify key set")
		}
		method = jwt.SigningMethodHS256
	case MethodEd25519:
		if len(cfg.PublicKey) == 0 && len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		for kid, key := range cfg.VerifyKeys {
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
		method = jwt.SigningMethodEdDSA
	default:
		return nil, errors.New("unsupported signing method")
	}
	for kid := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		options = append(options, jwt.WithAudience(cfg.Audience))
	}

	return &Verifier{config: cfg, method: method, options: options}, nil
}

// Parse verifies tokenStr and extracts its revocation claims. Expired tokens are
// rejected; there is nothing left to revoke.
func (v *Verifier) Parse(tokenStr string) (*RevocationClaims, error) {
	parser := jwt.NewParser(v.options...)
	var claims jwt.RegisteredClaims
	token, err := parser.ParseWithClaims(tokenStr, &claims, v.keyFunc)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.ID == "" {
		return nil, ErrMissingTokenID
	}
	if claims.ExpiresAt == nil {
		return nil, ErrMissingExpiry
	}

	return &RevocationClaims{
		TokenID:   claims.ID,
		Subject:   claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (v *Verifier) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != v.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	if len(v.config.VerifyKeys) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := v.config.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return v.verifyKey(key)
	}

	if v.config.SigningMethod == MethodHS256 {
		return v.config.Secret, nil
	}
	return v.verifyKey(v.config.PublicKey)
}

func (v *Verifier) verifyKey(key []byte) (interface{}, error) {
	if v.config.SigningMethod == MethodHS256 {
		return key, nil
	}
	return parseEdPublicKey(key)
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
