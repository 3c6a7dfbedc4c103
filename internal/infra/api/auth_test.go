//go:build !integration

package api

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestAuthManager(t *testing.T) {
	t.Run("empty secret disables auth", func(t *testing.T) {
		if NewAuthManager("", time.Minute) != nil {
			t.Error("expected nil manager")
		}
	})

	t.Run("round trip", func(t *testing.T) {
		a := NewAuthManager("secret", time.Minute)
		tok, exp, err := a.Mint("ops")
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		if time.Until(exp) > time.Minute {
			t.Errorf("unexpected expiry %v", exp)
		}
		req := httptest.NewRequest("GET", "/promo/x", nil)
		req.Header.Set("Authorization", "bearer "+tok)
		claims, err := a.ParseFromRequest(req)
		if err != nil || claims.Subject != "ops" || claims.Role != adminRole {
			t.Errorf("unexpected claims %+v %v", claims, err)
		}
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		a := NewAuthManager("secret", time.Minute)
		tok, _, _ := a.Mint("ops")
		a.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		if _, err := a.parse(tok); err == nil {
			t.Error("expected expired token to fail")
		}
	})

	t.Run("other secret is rejected", func(t *testing.T) {
		tok, _, _ := NewAuthManager("one", time.Minute).Mint("ops")
		if _, err := NewAuthManager("two", time.Minute).parse(tok); err == nil {
			t.Error("expected signature check to fail")
		}
	})

	t.Run("missing header", func(t *testing.T) {
		a := NewAuthManager("secret", time.Minute)
		if _, err := a.ParseFromRequest(httptest.NewRequest("GET", "/", nil)); err != errMissingToken {
			t.Errorf("expected errMissingToken, got %v", err)
		}
	})
}
