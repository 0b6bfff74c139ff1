package handlers

import (
	"testing"
	"time"

	"github.com/tmachado/agendly/libs/auth"
	"github.com/tmachado/agendly/services/auth-service/internal/storage"
)

func TestPasswordHashing(t *testing.T) {
	password := "pass-123456"
	hash, err := hashPassword(password)
	if err != nil {
		t.Fatalf("hashPassword failed: %v", err)
	}
	if hash == "" {
		t.Fatal("expected non-empty hash")
	}
	if err := verifyPassword(hash, password); err != nil {
		t.Fatalf("verifyPassword should succeed: %v", err)
	}
	if err := verifyPassword(hash, "wrong-pass"); err == nil {
		t.Fatal("verifyPassword should fail for wrong password")
	}
}

func TestIssueAccessToken(t *testing.T) {
	h := &AuthHandler{jwtSecret: "test-secret"}
	user := storage.User{
		ID:         "user-1",
		TenantSlug: "glow-studio",
		Role:       "owner",
	}
	token, err := h.issueAccessToken(user)
	if err != nil {
		t.Fatalf("issueAccessToken failed: %v", err)
	}
	claims, err := auth.ParseAndVerifyHS256(token, "test-secret")
	if err != nil {
		t.Fatalf("token should verify: %v", err)
	}
	if claims.Sub != user.ID || claims.TenantID != user.TenantSlug || claims.Role != user.Role {
		t.Errorf("claims mismatch: %+v", claims)
	}
	if claims.Exp <= time.Now().Unix() {
		t.Error("token should not be expired on issue")
	}
}

func TestNewRefreshTokenIsHexAndUnique(t *testing.T) {
	a, err := newRefreshToken()
	if err != nil {
		t.Fatal(err)
	}
	b, err := newRefreshToken()
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 64 || a == b {
		t.Errorf("want two distinct 64-char tokens, got %q and %q", a, b)
	}
}
