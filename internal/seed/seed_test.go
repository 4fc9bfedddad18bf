package seed

import (
	"context"
	"testing"

	"creditflow/internal/models"
	"creditflow/internal/repository"
	"creditflow/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSeeder(t *testing.T) (*Seeder, *service.CreditService) {
	t.Helper()
	svc := service.NewCreditService(repository.NewMemoryRepository(), service.Config{})
	return NewSeeder(svc, 42), svc
}

func TestDemoFixtures(t *testing.T) {
	fixtures, err := DemoFixtures()
	require.NoError(t, err)
	require.Len(t, fixtures, 3)
	assert.Equal(t, "Alice Johnson", fixtures[0].Customer)
	assert.Equal(t, models.CreditRequestStatusApproved, fixtures[2].Status)
}

func TestParseFixturesRejectsUnknownStatus(t *testing.T) {
	_, err := ParseFixtures([]byte("requests:\n  - customer: X\n    status: maybe\n"))
	assert.Error(t, err)
}

func TestParseFixturesDefaultsToPending(t *testing.T) {
	fixtures, err := ParseFixtures([]byte("requests:\n  - customer: X\n    amount: \"1\"\n    reason: r\n    cashier: c\n"))
	require.NoError(t, err)
	require.Len(t, fixtures, 1)
	assert.Equal(t, models.CreditRequestStatusPending, fixtures[0].Status)
}

func TestSeederDemo(t *testing.T) {
	s, svc := newSeeder(t)
	ctx := context.Background()

	reqs, err := s.Demo(ctx)
	require.NoError(t, err)
	require.Len(t, reqs, 3)

	carol := reqs[2]
	assert.Equal(t, models.CreditRequestStatusApproved, carol.Status)
	require.NotNil(t, carol.VerificationCode)
	require.NotNil(t, carol.ReviewedBy)
	assert.Equal(t, Reviewer, *carol.ReviewedBy)

	result, err := svc.Redeem(ctx, "Jane Smith", *carol.VerificationCode, "Carol Davis")
	require.NoError(t, err)
	assert.True(t, result.Valid)

	history, err := svc.History(ctx, "Alice Johnson")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "2000", history[0].Amount.String())
}

func TestSeederRandom(t *testing.T) {
	s, svc := newSeeder(t)

	reqs, err := s.Random(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, reqs, 5)
	for _, r := range reqs {
		assert.Equal(t, models.CreditRequestStatusPending, r.Status)
		assert.True(t, r.Amount.IsPositive())
		assert.NotEmpty(t, r.Customer)
	}

	all, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestApplyRejectsBadAmount(t *testing.T) {
	s, _ := newSeeder(t)
	_, err := s.Apply(context.Background(), []Fixture{{Cashier: "c", Customer: "x", Amount: "lots", Reason: "r"}})
	assert.Error(t, err)
}
