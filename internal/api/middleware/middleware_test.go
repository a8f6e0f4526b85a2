package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"cvinsight/internal/auth"
)

type staticValidator struct {
	token string
	user  uint
}

func (v staticValidator) ValidateAccessToken(token string) (*auth.TokenClaims, error) {
	if token != v.token {
		return nil, errors.New("bad token")
	}
	return &auth.TokenClaims{UserID: v.user, TokenType: auth.TokenTypeAccess}, nil
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CorrelationIDMiddleware())
	r.GET("/probe", append(handlers, func(c *gin.Context) {
		id, _ := UserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": id, "correlation_id": GetCorrelationID(c)})
	})...)
	return r
}

func TestAuthMiddleware(t *testing.T) {
	r := newEngine(AuthMiddleware(staticValidator{token: "good", user: 7}))

	cases := []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"good", http.StatusUnauthorized},
		{"Basic good", http.StatusUnauthorized},
		{"Bearer bad", http.StatusUnauthorized},
		{"Bearer good", http.StatusOK},
		{"bearer good", http.StatusOK},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("header %q: status %d want %d", tc.header, w.Code, tc.want)
		}
	}
}

func TestCorrelationIDIsEchoed(t *testing.T) {
	r := newEngine()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Fatalf("correlation id = %q", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	if w.Header().Get("X-Correlation-ID") == "" {
		t.Fatal("expected generated correlation id")
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("X-Correlation-ID", "bad id\nwith newline")
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Correlation-ID"); got == "" || strings.Contains(got, " ") {
		t.Fatalf("unsafe correlation id was echoed: %q", got)
	}
}

func TestInternalSecretMiddleware(t *testing.T) {
	open := newEngine(InternalSecretMiddleware(""))
	w := httptest.NewRecorder()
	open.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("empty secret should pass, got %d", w.Code)
	}

	guarded := newEngine(InternalSecretMiddleware("s3cret"))
	for header, want := range map[string]int{"": http.StatusUnauthorized, "nope": http.StatusUnauthorized, "s3cret": http.StatusOK} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		if header != "" {
			req.Header.Set("X-Internal-Secret", header)
		}
		guarded.ServeHTTP(w, req)
		if w.Code != want {
			t.Fatalf("secret %q: status %d want %d", header, w.Code, want)
		}
	}
}
