package core

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	bearerPrefix           = "Bearer "
	DefaultTokenCookieName = "token"
)

// PrincipalResolver turns a request's token into a principal.
type PrincipalResolver struct {
	codec      *TokenCodec
	identities IdentityStore
	cookieName string
}

// NewPrincipalResolver reads tokens from the bearer header and, when
// cookieName is non-empty, from that cookie. Pass "" when token cookies are
// disabled, since CSRF protection is only installed alongside them.
func NewPrincipalResolver(codec *TokenCodec, identities IdentityStore, cookieName string) *PrincipalResolver {
	return &PrincipalResolver{codec: codec, identities: identities, cookieName: cookieName}
}

// ResolvePrincipal returns the principal proven by the request's token.
// Any failure yields (nil, false); the caller treats the request as anonymous.
func (r *PrincipalResolver) ResolvePrincipal(req *http.Request) (*Principal, bool) {
	token, source := extractToken(req, r.cookieName)
	if token == "" {
		return nil, false
	}
	logger := log.With().Str("source", source).Str("path", req.URL.Path).Logger()

	claims, err := r.codec.Decode(token)
	if err != nil {
		logger.Debug().Err(err).Msg("token rejected")
		return nil, false
	}
	if r.codec.expired(claims) {
		logger.Debug().Str("subject", claims.Subject).Msg("token expired")
		return nil, false
	}

	ctx, cancel := context.WithTimeout(req.Context(), storeTimeout)
	defer cancel()
	id, err := ResolveIdentity(ctx, r.identities, claims.Subject)
	if err != nil {
		logger.Warn().Err(err).Str("subject", claims.Subject).Msg("identity lookup failed during token check")
		return nil, false
	}
	if id == nil {
		logger.Debug().Str("subject", claims.Subject).Msg("token subject has no identity")
		return nil, false
	}
	if !r.codec.valid(claims, id.Username) {
		logger.Debug().Str("subject", claims.Subject).Msg("token subject does not match identity")
		return nil, false
	}
	return NewPrincipal(*id), true
}

// extractToken prefers an "Authorization: Bearer" header and falls back to
// the token cookie when one is named.
func extractToken(req *http.Request, cookieName string) (token, source string) {
	if h := req.Header.Get("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		if t := strings.TrimSpace(h[len(bearerPrefix):]); t != "" {
			return t, "header"
		}
	}
	if cookieName == "" {
		return "", ""
	}
	if ck, err := req.Cookie(cookieName); err == nil && ck.Value != "" {
		return ck.Value, "cookie"
	}
	return "", ""
}

// AuthenticationFilter binds the request's principal when none is bound yet.
// It never aborts; access decisions belong to RequireAuthenticated/RequireRole.
func AuthenticationFilter(resolver *PrincipalResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, bound := PrincipalFromContext(c.Request.Context()); !bound {
			if p, ok := resolver.ResolvePrincipal(c.Request); ok {
				c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), p))
			}
		}
		c.Next()
	}
}

// CurrentPrincipal returns the principal bound to the gin request, if any.
func CurrentPrincipal(c *gin.Context) (*Principal, bool) {
	return PrincipalFromContext(c.Request.Context())
}
