package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/chargeslot-backend/internal/identity"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHeaderAuth(t *testing.T) {
	r := gin.New()
	var got identity.Caller
	r.GET("/", HeaderAuth(), func(c *gin.Context) {
		got, _ = GetCaller(c)
		c.Status(http.StatusNoContent)
	})

	if w := serve(r, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d without header, got %d", http.StatusUnauthorized, w.Code)
	}

	w := serve(r, map[string]string{UserIDHeader: "owner-1", RoleHeader: "owner"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d: %s", http.StatusNoContent, w.Code, w.Body.String())
	}
	if got.UserID != "owner-1" || got.Role != identity.RoleOwner {
		t.Errorf("unexpected caller: %+v", got)
	}

	serve(r, map[string]string{UserIDHeader: "user-1", RoleHeader: "superuser"})
	if got.Role != identity.RoleUser {
		t.Errorf("expected unknown roles to fall back to user, got %s", got.Role)
	}
}

func TestRequireRole(t *testing.T) {
	r := gin.New()
	r.GET("/", HeaderAuth(), RequireRole(identity.RoleOwner, identity.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	tests := []struct {
		role string
		want int
	}{
		{"", http.StatusForbidden},
		{"user", http.StatusForbidden},
		{"owner", http.StatusNoContent},
		{"admin", http.StatusNoContent},
	}
	for _, tt := range tests {
		w := serve(r, map[string]string{UserIDHeader: "someone", RoleHeader: tt.role})
		if w.Code != tt.want {
			t.Errorf("role %q: expected status %d, got %d", tt.role, tt.want, w.Code)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	r := gin.New()
	r.GET("/", HeaderAuth(), rl.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	alice := map[string]string{UserIDHeader: "alice"}
	for i := 0; i < 2; i++ {
		if w := serve(r, alice); w.Code != http.StatusNoContent {
			t.Fatalf("request %d: expected status %d, got %d", i, http.StatusNoContent, w.Code)
		}
	}
	w := serve(r, alice)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status %d once the burst is spent, got %d", http.StatusTooManyRequests, w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected a Retry-After header")
	}

	if w := serve(r, map[string]string{UserIDHeader: "bob"}); w.Code != http.StatusNoContent {
		t.Errorf("expected another caller to have its own bucket, got %d", w.Code)
	}
}

func TestParseRole(t *testing.T) {
	for in, want := range map[string]identity.Role{
		"owner": identity.RoleOwner,
		"admin": identity.RoleAdmin,
		"user":  identity.RoleUser,
		"":      identity.RoleUser,
	} {
		if got := identity.ParseRole(in); got != want {
			t.Errorf("%q: expected %s, got %s", in, want, got)
		}
	}
}
