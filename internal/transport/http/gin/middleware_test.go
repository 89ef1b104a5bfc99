package httpgin

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/avelychko/bookgo/internal/domain"
)

func identityRouter(extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	handlers := append([]gin.HandlerFunc{IdentityMiddleware()}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		p, ok := principalFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": p.UserID, "role": p.Role})
	})

	r.GET("/whoami", handlers...)
	return r
}

func TestIdentityMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("missing header is unauthorized", func(t *testing.T) {
		r := identityRouter()

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})

	t.Run("non-numeric user id is unauthorized", func(t *testing.T) {
		r := identityRouter()

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("X-User-ID", "abc")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})

	t.Run("valid headers set the principal", func(t *testing.T) {
		r := identityRouter()

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("X-User-ID", "42")
		req.Header.Set("X-User-Role", domain.RoleOrganizer)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if body := w.Body.String(); body != `{"role":"organizer","user_id":42}` {
			t.Fatalf("unexpected body %s", body)
		}
	})

	t.Run("role defaults to user", func(t *testing.T) {
		r := identityRouter()

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("X-User-ID", "42")
		r.ServeHTTP(w, req)

		if body := w.Body.String(); body != `{"role":"user","user_id":42}` {
			t.Fatalf("unexpected body %s", body)
		}
	})
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	t.Run("allowed role passes", func(t *testing.T) {
		r := identityRouter(RequireRole(domain.RoleAdmin, domain.RoleOrganizer))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("X-User-ID", "1")
		req.Header.Set("X-User-Role", domain.RoleAdmin)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	})

	t.Run("other roles are forbidden", func(t *testing.T) {
		r := identityRouter(RequireRole(domain.RoleAdmin))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("X-User-ID", "1")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
	})
}
