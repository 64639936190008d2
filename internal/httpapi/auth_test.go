package httpapi

import (
	"testing"
	"time"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store/memory"
)

func newTestAuth() *AuthManager {
	return NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour, memory.NewSeeded())
}

func TestLoginAndParseToken(t *testing.T) {
	auth := newTestAuth()

	resp, err := auth.Login(domain.LoginRequest{Username: " Admin ", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != "admin" {
		t.Fatalf("role = %q, want admin", resp.Role)
	}
	if resp.AccessToken == "" {
		t.Fatalf("empty access token")
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	auth := newTestAuth()

	if _, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "wrong"}); err == nil {
		t.Fatalf("expected wrong password to be rejected")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "ghost", Password: "admin123"}); err == nil {
		t.Fatalf("expected unknown user to be rejected")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	auth := newTestAuth()

	if _, err := auth.ParseToken("not-a-token"); err == nil {
		t.Fatalf("expected garbage token to be rejected")
	}
}

func TestCreateCashier(t *testing.T) {
	auth := newTestAuth()

	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "ab", Password: "secret1"}); err == nil {
		t.Fatalf("expected short username to be rejected")
	}
	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "newkid", Password: "123"}); err == nil {
		t.Fatalf("expected short password to be rejected")
	}
	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "cashier", Password: "secret1"}); err == nil {
		t.Fatalf("expected duplicate username to be rejected")
	}

	info, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "NewKid", Password: "secret1"})
	if err != nil {
		t.Fatalf("create cashier failed: %v", err)
	}
	if info.Username != "newkid" || info.Role != "cashier" || !info.Active {
		t.Fatalf("unexpected cashier %+v", info)
	}

	if _, err := auth.Login(domain.LoginRequest{Username: "newkid", Password: "secret1"}); err != nil {
		t.Fatalf("new cashier login failed: %v", err)
	}

	found := false
	for _, c := range auth.ListCashiers() {
		if c.Username == "newkid" {
			found = true
		}
	}
	if !found {
		t.Fatalf("new cashier missing from listing")
	}
}
