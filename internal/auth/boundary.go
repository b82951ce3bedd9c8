package auth

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"ecotrack/api-gateway/internal/apperr"
	"ecotrack/api-gateway/internal/util"
)

var (
	ErrMissingToken  = errors.New("missing bearer token")
	ErrInvalidFormat = errors.New("malformed authorization header")
	ErrTokenExpired  = errors.New("token expired")
	ErrInvalidToken  = errors.New("invalid token")
)

const (
	msgMissingToken  = "Token JWT manquant"
	msgInvalidFormat = "Format du token invalide"
	msgTokenExpired  = "Token expiré"
	msgInvalidToken  = "Token invalide"
	msgAuthRequired  = "Authentification requise"
	msgAccessDenied  = "Accès refusé"
)

var validMethods = []string{
	jwt.SigningMethodHS256.Alg(),
	jwt.SigningMethodHS384.Alg(),
	jwt.SigningMethodHS512.Alg(),
}

// Boundary verifies bearer tokens issued with the shared HMAC secret.
type Boundary struct {
	secret []byte
	public PublicRoutes
	logger *zap.Logger
	now    func() time.Time
}

type Option func(*Boundary)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(b *Boundary) { b.now = now }
}

func NewBoundary(secret string, public PublicRoutes, logger *zap.Logger, opts ...Option) *Boundary {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Boundary{secret: []byte(secret), public: public, logger: logger, now: time.Now}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Public exposes the route table the middleware consults.
func (b *Boundary) Public() PublicRoutes { return b.public }

// Authenticate verifies the request's bearer token and returns its identity.
func (b *Boundary) Authenticate(r *http.Request) (Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Identity{}, apperr.Unauthorized(msgMissingToken).Wrap(ErrMissingToken)
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return Identity{}, apperr.Unauthorized(msgInvalidFormat).Wrap(ErrInvalidFormat)
	}

	tok, err := jwt.Parse(parts[1], func(*jwt.Token) (any, error) {
		return b.secret, nil
	}, jwt.WithValidMethods(validMethods), jwt.WithTimeFunc(b.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, apperr.Unauthorized(msgTokenExpired).Wrap(ErrTokenExpired)
		}
		return Identity{}, apperr.Unauthorized(msgInvalidToken).Wrap(errors.Join(ErrInvalidToken, err))
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return Identity{}, apperr.Unauthorized(msgInvalidToken).Wrap(ErrInvalidToken)
	}

	id := claimID(claims["userId"])
	if id == "" {
		id = claimID(claims["id"])
	}
	if id == "" {
		return Identity{}, apperr.Unauthorized(msgInvalidToken).Wrap(ErrInvalidToken)
	}
	role, _ := claims["role"].(string)
	email, _ := claims["email"].(string)
	return Identity{ID: id, Role: role, Email: email}, nil
}

// claimID renders string and numeric ids; numbers print as decimals.
func claimID(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}

// Middleware authenticates non-public requests and stores the identity in
// the request context.
func (b *Boundary) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if b.public.IsPublic(r.URL.Path, r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			id, err := b.Authenticate(r)
			if err != nil {
				b.logger.Debug("authentication failed",
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
					zap.Error(errors.Unwrap(err)),
				)
				util.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole admits requests whose identity role is one of roles.
// Matching is exact and case-sensitive.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := FromContext(r.Context())
			if !ok {
				util.WriteError(w, apperr.Unauthorized(msgAuthRequired))
				return
			}
			if _, ok := allowed[id.Role]; !ok {
				util.WriteError(w, apperr.Forbidden(msgAccessDenied, roles))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
