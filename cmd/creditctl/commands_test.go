package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"creditflow/internal/config"
	"creditflow/internal/middleware"
	"creditflow/internal/models"
	"creditflow/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

func stubConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:          testSecret,
		StoreDriver:        config.StoreMemory,
		CodeTTLMinutes:     30,
		CodeRetentionHours: 24,
	}
	prevLoad, prevOpen := loadConfig, openStore
	t.Cleanup(func() { loadConfig, openStore = prevLoad, prevOpen })
	loadConfig = func() (*config.Config, error) { return cfg, nil }
	return cfg
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	stubConfig(t)

	out, err := run(t, "token", "Jane", "--role", "admin")
	require.NoError(t, err)

	claims, err := middleware.ParseToken(testSecret, strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "Jane", claims.Subject)
	assert.Equal(t, middleware.RoleAdmin, claims.Role)
}

func TestTokenCommandRejectsUnknownRole(t *testing.T) {
	stubConfig(t)
	_, err := run(t, "token", "Jane", "--role", "owner")
	assert.Error(t, err)
}

func TestSeedAndSweepCommands(t *testing.T) {
	cfg := stubConfig(t)
	repo := repository.NewMemoryRepository()
	openStore = func() (*config.Config, repository.CreditRepository, error) { return cfg, repo, nil }

	out, err := run(t, "seed", "--random", "4", "--rand-seed", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 3 demo requests")
	assert.Contains(t, out, "seeded 4 generated requests")

	reqs, err := repo.ListRequests(context.Background())
	require.NoError(t, err)
	assert.Len(t, reqs, 7)

	longGone := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, repo.CreateCode(context.Background(), &models.VerificationCode{
		ID:        "old",
		Code:      "OLD001",
		Label:     models.DefaultCodeLabel,
		CreatedAt: longGone.Add(-time.Hour),
		ExpiresAt: &longGone,
	}))

	out, err = run(t, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "evicted 1 expired codes")
}
