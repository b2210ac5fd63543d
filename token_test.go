package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"kanban-api/api"
)

func TestIssueTokenCommand(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOCAL_AUTH_SHARED_SECRET", "dev-secret")

	var out bytes.Buffer
	cmd := issueTokenCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"user-42", "--ttl", "1h"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	token := strings.TrimSpace(out.String())
	sub, err := api.NewAuth([]byte("dev-secret"), time.Hour).UserIDFromToken(token)
	if err != nil || sub != "user-42" {
		t.Fatalf("issued token did not verify: %q %v", sub, err)
	}
}

func TestIssueTokenCommandRequiresSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOCAL_AUTH_SHARED_SECRET", "")

	cmd := issueTokenCmd()
	cmd.SetArgs([]string{"user-42"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error without a secret")
	}
}
