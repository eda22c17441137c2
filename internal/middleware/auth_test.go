package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func newTestRouter(auth *AuthMiddleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", auth.RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"account": AccountFromContext(c)})
	})
	return r
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	auth := NewAuthMiddleware("test-secret", logrus.New())
	r := newTestRouter(auth)

	token, err := auth.IssueToken("0xAaaaAAAAaAAAaaaAaAAAaaAAaaaAAAAAAaaaaaa1", time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRequireAuthRejectsMissingAndInvalidTokens(t *testing.T) {
	auth := NewAuthMiddleware("test-secret", logrus.New())
	r := newTestRouter(auth)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: want 401, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: want 401, got %d", w.Code)
	}
}

func TestRequireAuthRejectsTokenSignedWithOtherSecret(t *testing.T) {
	issuer := NewAuthMiddleware("other-secret", logrus.New())
	token, err := issuer.IssueToken("0xAaaaAAAAaAAAaaaAaAAAaaAAaaaAAAAAAaaaaaa1", time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	auth := NewAuthMiddleware("test-secret", logrus.New())
	r := newTestRouter(auth)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("forged token: want 401, got %d", w.Code)
	}
}
