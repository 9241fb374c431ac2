package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/kiosk_backend/models"
	"github.com/mmdatafocus/kiosk_backend/utils"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CorrelationId())
	ops := r.Group("/ops", AuthMiddleware(), AdminOnly())
	ops.GET("/whoami", func(c *gin.Context) {
		tenant, err := models.TenantFromContext(c.Request.Context())
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"business_id": tenant.BusinessId, "user_id": tenant.UserId})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	t.Setenv("API_SECRET", "test-secret")
	r := newTestRouter()

	admin, err := utils.JwtGenerate(3, "biz-1", utils.RoleAdmin)
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}
	cashier, _ := utils.JwtGenerate(4, "biz-1", "cashier")

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"not admin", "Bearer " + cashier, http.StatusForbidden},
		{"admin", "Bearer " + admin, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ops/whoami", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status: got %d want %d (%s)", w.Code, tc.want, w.Body.String())
			}
			if w.Header().Get("x-correlation-id") == "" {
				t.Fatalf("missing correlation id header")
			}
		})
	}
}
