package wsserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token has expired")
	ErrNoIdentity   = errors.New("missing player identity")
)

// Authenticator resolves the player behind a websocket handshake.
type Authenticator interface {
	Authenticate(r *http.Request) (int64, error)
}

// Claims carries the player id of a connect token.
type Claims struct {
	PlayerID int64 `json:"player_id"`
	jwt.RegisteredClaims
}

// TokenAuth validates HS256 connect tokens passed as a bearer header or ?token=.
type TokenAuth struct {
	secret []byte
}

func NewTokenAuth(secret string) *TokenAuth { return &TokenAuth{secret: []byte(secret)} }

// Issue signs a token for playerID; used by tests and the lobbycheck tool.
func (a *TokenAuth) Issue(playerID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		PlayerID: playerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(playerID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *TokenAuth) Authenticate(r *http.Request) (int64, error) {
	raw := bearerToken(r)
	if raw == "" {
		return 0, ErrNoIdentity
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrTokenExpired
		}
		return 0, ErrTokenInvalid
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.PlayerID <= 0 {
		return 0, ErrTokenInvalid
	}
	return claims.PlayerID, nil
}

func bearerToken(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// QueryAuth trusts a playerId query parameter; for development without AUTH_SECRET.
type QueryAuth struct{}

func (QueryAuth) Authenticate(r *http.Request) (int64, error) {
	v := strings.TrimSpace(r.URL.Query().Get("playerId"))
	if v == "" {
		return 0, ErrNoIdentity
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrNoIdentity
	}
	return id, nil
}
