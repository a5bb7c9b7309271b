package auth

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/sentra-auth/sentra/internal/shared"
	_ "github.com/sentra-auth/sentra/testing"
)

type stubAuthRepo struct {
	users map[string]*User
}

func (s *stubAuthRepo) FindByEmail(_ context.Context, email string) (*User, error) {
	u, ok := s.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(h)
}

func TestAuthenticate(t *testing.T) {
	repo := &stubAuthRepo{users: map[string]*User{
		"ana@example.com": {ID: 7, Email: "ana@example.com", PasswordHash: hash(t, "s3cret"), IsActive: true},
	}}
	svc := NewService(repo)

	user, err := svc.Authenticate(context.Background(), "ana@example.com", "s3cret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.ID != 7 {
		t.Fatalf("wrong user: %+v", user)
	}
}

func TestAuthenticateFailuresAreUniform(t *testing.T) {
	repo := &stubAuthRepo{users: map[string]*User{
		"ana@example.com":  {ID: 7, Email: "ana@example.com", PasswordHash: hash(t, "s3cret"), IsActive: true},
		"gone@example.com": {ID: 8, Email: "gone@example.com", PasswordHash: hash(t, "s3cret"), IsActive: false},
	}}
	svc := NewService(repo)
	ctx := context.Background()

	cases := []struct {
		name, email, password string
	}{
		{"wrong password", "ana@example.com", "nope"},
		{"unknown email", "who@example.com", "s3cret"},
		{"inactive account", "gone@example.com", "s3cret"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Authenticate(ctx, tc.email, tc.password); !errors.Is(err, shared.ErrInvalidCredentials) {
				t.Fatalf("expected invalid credentials, got %v", err)
			}
		})
	}
}
