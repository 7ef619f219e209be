package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testKey = []byte("test-signing-key")

func signToken(t *testing.T, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(testKey)
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func runJWT(t *testing.T, cfg JWTConfig, authHeader string) (echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	handler := JWTMiddleware(cfg)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	return c, handler(c)
}

func TestJWTMiddlewareAcceptsValidToken(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "dr-jones",
			Issuer:    "wardround",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: []string{"physician"},
	}
	cfg := JWTConfig{Issuer: "wardround", SigningKey: testKey}

	c, err := runJWT(t, cfg, "Bearer "+signToken(t, claims))
	if err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
	if uid := UserIDFromContext(c.Request().Context()); uid != "dr-jones" {
		t.Errorf("user id = %q", uid)
	}
	if roles := RolesFromContext(c.Request().Context()); len(roles) != 1 || roles[0] != "physician" {
		t.Errorf("roles = %v", roles)
	}
}

func TestJWTMiddlewareRejections(t *testing.T) {
	cfg := JWTConfig{Issuer: "wardround", SigningKey: testKey}
	expired := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "wardround",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}}
	wrongIssuer := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not.a.jwt"},
		{"expired", "Bearer " + signToken(t, expired)},
		{"wrong issuer", "Bearer " + signToken(t, wrongIssuer)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := runJWT(t, cfg, tc.header)
			he, ok := err.(*echo.HTTPError)
			if !ok || he.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %v", err)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	run := func(roles []string) error {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		c := e.NewContext(req, httptest.NewRecorder())
		if roles != nil {
			ctx := context.WithValue(c.Request().Context(), UserRolesKey, roles)
			c.SetRequest(c.Request().WithContext(ctx))
		}
		mw := RequireRole("physician", "nurse")(func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})
		return mw(c)
	}

	if err := run([]string{"physician"}); err != nil {
		t.Errorf("physician rejected: %v", err)
	}
	if err := run([]string{"admin"}); err != nil {
		t.Errorf("admin rejected: %v", err)
	}
	err := run([]string{"auditor"})
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden {
		t.Errorf("expected 403 for auditor, got %v", err)
	}
	if err := run(nil); err == nil {
		t.Error("expected 403 for anonymous request")
	}
}
