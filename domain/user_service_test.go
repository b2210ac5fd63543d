package domain

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestUserService(t *testing.T) (*UserService, *fakeStore) {
	t.Helper()
	st := newFakeStore()
	svc := NewUserService(st, NewBoardService(st, nil))
	svc.cost = bcrypt.MinCost
	return svc, st
}

func TestRegisterSeedsBoard(t *testing.T) {
	svc, st := newTestUserService(t)
	ctx := context.Background()
	u, err := svc.Register(ctx, "  Alice@Example.com ", "correct horse")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Email != "alice@example.com" || u.ID == "" {
		t.Fatalf("unexpected user %+v", u)
	}
	if string(u.PasswordHash) == "correct horse" {
		t.Fatal("password stored in clear")
	}
	if len(st.columns[u.ID]) != len(DefaultColumns) {
		t.Fatalf("expected default columns, got %d", len(st.columns[u.ID]))
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestUserService(t)
	ctx := context.Background()
	tests := []struct {
		email, password, field string
	}{
		{"not-an-email", "longenough", "email"},
		{"Bob <bob@example.com>", "longenough", "email"},
		{"bob@example.com", "short", "password"},
	}
	for _, tt := range tests {
		_, err := svc.Register(ctx, tt.email, tt.password)
		if verr, ok := AsValidation(err); !ok || verr.Field != tt.field {
			t.Fatalf("Register(%q) expected %s validation error, got %v", tt.email, tt.field, err)
		}
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestUserService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, "carol@example.com", "password1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := svc.Register(ctx, "CAROL@example.com", "password2")
	if !errors.Is(err, ErrEmailTaken) || !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc, _ := newTestUserService(t)
	ctx := context.Background()
	reg, err := svc.Register(ctx, "dave@example.com", "password1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	u, err := svc.Login(ctx, "Dave@Example.com", "password1")
	if err != nil || u.ID != reg.ID {
		t.Fatalf("Login: %+v %v", u, err)
	}
	if _, err := svc.Login(ctx, "dave@example.com", "wrong-pass"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for wrong password, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "password1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for unknown email, got %v", err)
	}
}
