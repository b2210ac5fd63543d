package api

import (
	"errors"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

const (
	// LocalIssuer is the iss claim of locally issued tokens.
	LocalIssuer         = "kanban-api"
	defaultJWKSCacheTTL = 15 * time.Minute
	defaultTokenTTL     = 24 * time.Hour
)

var errLocalAuthDisabled = errors.New("local auth secret not configured")

// Auth issues HS256 tokens for local accounts and validates both those and,
// when configured, RS256 tokens from an Auth0 tenant.
type Auth struct {
	JWKS     *keyfunc.JWKS
	Audience string
	Issuer   string
	Secret   []byte
	TokenTTL time.Duration

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth creates an Auth for locally issued tokens. secret may be empty
// when only Auth0 tokens are accepted.
func NewAuth(secret []byte, tokenTTL time.Duration) *Auth {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &Auth{
		Secret:      secret,
		TokenTTL:    tokenTTL,
		parser:      jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "RS256"})),
		keyCacheTTL: defaultJWKSCacheTTL,
	}
}

// UseAuth0 enables validation of RS256 tokens signed by keys from jwks.
func (a *Auth) UseAuth0(jwks *keyfunc.JWKS, audience, issuer string, cacheTTL time.Duration) {
	a.JWKS = jwks
	a.Audience = audience
	a.Issuer = issuer
	if cacheTTL > 0 {
		a.keyCacheTTL = cacheTTL
	}
}

// Issue signs a token for userID and returns it with its expiry.
func (a *Auth) Issue(userID string) (string, time.Time, error) {
	if len(a.Secret) == 0 {
		return "", time.Time{}, errLocalAuthDisabled
	}
	now := time.Now()
	exp := now.Add(a.TokenTTL)
	claims := jwt.MapClaims{
		"sub": userID,
		"iss": LocalIssuer,
		"iat": now.Unix(),
		"exp": exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// UserIDFromAuthHeader extracts the user identifier from the Authorization header.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	if h == "" {
		return "", errMissingAuthorization
	}
	token, err := bearerTokenFromString(h)
	if err != nil {
		return "", err
	}
	return a.UserIDFromToken(token)
}

// UserIDFromToken validates a raw JWT and returns its subject.
func (a *Auth) UserIDFromToken(tokenStr string) (string, error) {
	if tokenStr == "" {
		return "", errBadAuthorization
	}
	parsed, err := a.parser.Parse(tokenStr, a.keyFor)
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	now := time.Now().Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return "", errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return "", errors.New("token not valid yet")
	}
	if _, local := parsed.Method.(*jwt.SigningMethodHMAC); local {
		if !claims.VerifyIssuer(LocalIssuer, true) {
			return "", errors.New("invalid issuer")
		}
	} else {
		if a.Audience != "" && !claims.VerifyAudience(a.Audience, true) {
			return "", errors.New("invalid audience")
		}
		if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, true) {
			return "", errors.New("invalid issuer")
		}
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}
	return sub, nil
}

func (a *Auth) keyFor(t *jwt.Token) (any, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(a.Secret) == 0 {
			return nil, errLocalAuthDisabled
		}
		return a.Secret, nil
	case *jwt.SigningMethodRSA:
		return a.keyForToken(t)
	default:
		return nil, errors.New("invalid signing method")
	}
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if a.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && a.keyCacheTTL > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && a.keyCacheTTL > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(a.keyCacheTTL)})
	}
	return key, nil
}
