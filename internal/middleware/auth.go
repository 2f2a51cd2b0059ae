package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	adapter "github.com/gwatts/gin-adapter"

	"github.com/semanticallynull/chargeslot-backend/internal/identity"
)

// RoleClaim is the namespaced access token claim carrying the caller's role.
const RoleClaim = "https://chargeslot.app/role"

// Header names understood by HeaderAuth.
const (
	UserIDHeader = "X-User-ID"
	RoleHeader   = "X-User-Role"
)

type customClaims struct {
	Role string `json:"https://chargeslot.app/role"`
}

func (c *customClaims) Validate(context.Context) error {
	return nil
}

// JWT validates bearer tokens issued by the Auth0 tenant at domain for audience, then resolves
// the caller from the validated claims.
func JWT(domain, audience string) ([]gin.HandlerFunc, error) {
	issuerURL, err := url.Parse("https://" + domain + "/")
	if err != nil {
		return nil, err
	}
	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	v, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{audience},
		validator.WithCustomClaims(func() validator.CustomClaims { return &customClaims{} }),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, err
	}

	mw := jwtmiddleware.New(v.ValidateToken, jwtmiddleware.WithErrorHandler(jwtError))
	return []gin.HandlerFunc{adapter.Wrap(mw.CheckJWT), fromClaims()}, nil
}

func jwtError(w http.ResponseWriter, _ *http.Request, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    "UNAUTHORIZED",
		"message": "Authentication required",
	})
}

func fromClaims() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := c.Request.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
		if !ok || claims.RegisteredClaims.Subject == "" {
			unauthorized(c)
			return
		}
		caller := identity.Caller{UserID: claims.RegisteredClaims.Subject, Role: identity.RoleUser}
		if cc, ok := claims.CustomClaims.(*customClaims); ok {
			caller.Role = identity.ParseRole(cc.Role)
		}
		setCaller(c, caller)
		c.Next()
	}
}

// HeaderAuth trusts the X-User-ID and X-User-Role headers. It is meant for local development
// and tests only.
func HeaderAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" {
			unauthorized(c)
			return
		}
		setCaller(c, identity.Caller{UserID: userID, Role: identity.ParseRole(c.GetHeader(RoleHeader))})
		c.Next()
	}
}

func setCaller(c *gin.Context, caller identity.Caller) {
	c.Request = c.Request.WithContext(identity.WithCaller(c.Request.Context(), caller))
	c.Set(LoggerKey, GetLogger(c).With(slog.String("user_id", caller.UserID)))
}

// GetCaller returns the authenticated caller stored by JWT or HeaderAuth.
func GetCaller(c *gin.Context) (identity.Caller, bool) {
	return identity.FromContext(c.Request.Context())
}

// RequireRole rejects callers whose role is not one of roles.
func RequireRole(roles ...identity.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := GetCaller(c)
		if !ok {
			unauthorized(c)
			return
		}
		for _, r := range roles {
			if caller.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "NOT_AUTHORIZED", "message": "Insufficient role"})
	}
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
}
