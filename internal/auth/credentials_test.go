package auth

import (
	"io"
	"log/slog"
	"testing"

	"almanac-api/internal/config"
	"golang.org/x/crypto/bcrypt"
)

func TestEnvCredentials(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse-battery"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	verifier := NewEnvCredentials("admin", string(hash))

	if !verifier.VerifyCredentials("admin", "correct-horse-battery") {
		t.Error("correct credentials rejected")
	}
	if verifier.VerifyCredentials("admin", "wrong-password") {
		t.Error("wrong password accepted")
	}
	if verifier.VerifyCredentials("intruder", "correct-horse-battery") {
		t.Error("wrong username accepted")
	}
	if verifier.VerifyCredentials("", "") {
		t.Error("empty credentials accepted")
	}
}

func TestDevCredentials(t *testing.T) {
	verifier, err := NewDevCredentials("admin")
	if err != nil {
		t.Fatalf("NewDevCredentials: %v", err)
	}

	if !verifier.VerifyCredentials("admin", DevDefaultPassword) {
		t.Error("development default credentials rejected")
	}
	if verifier.VerifyCredentials("admin", "not-the-default") {
		t.Error("wrong password accepted")
	}
}

func TestResolveCredentials(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hash, err := bcrypt.GenerateFromPassword([]byte("configured-password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	// Configured hash wins
	verifier, err := ResolveCredentials(config.AuthConfig{
		AdminUsername:     "admin",
		AdminPasswordHash: string(hash),
	}, "development", logger)
	if err != nil {
		t.Fatalf("ResolveCredentials: %v", err)
	}
	if !verifier.VerifyCredentials("admin", "configured-password") {
		t.Error("configured credentials rejected")
	}
	if verifier.VerifyCredentials("admin", DevDefaultPassword) {
		t.Error("dev default accepted despite configured hash")
	}

	// Absent hash falls back to the development default
	verifier, err = ResolveCredentials(config.AuthConfig{
		AdminUsername: "admin",
	}, "development", logger)
	if err != nil {
		t.Fatalf("ResolveCredentials: %v", err)
	}
	if !verifier.VerifyCredentials("admin", DevDefaultPassword) {
		t.Error("dev default rejected when no hash configured")
	}
}
