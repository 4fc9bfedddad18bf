// Package seed populates a credit store with demo data for development and testing.
package seed

import (
	"context"
	_ "embed"
	"fmt"

	"creditflow/internal/models"
	"creditflow/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Reviewer is the actor recorded on decisions made while seeding.
const Reviewer = "seed-admin"

//go:embed fixtures.yml
var fixturesYAML []byte

// Fixture is one demo request and the decision it should end up with.
type Fixture struct {
	Cashier  string                     `yaml:"cashier"`
	Customer string                     `yaml:"customer"`
	Amount   string                     `yaml:"amount"`
	Reason   string                     `yaml:"reason"`
	Status   models.CreditRequestStatus `yaml:"status"`
}

type fixtureFile struct {
	Requests []Fixture `yaml:"requests"`
}

// ParseFixtures decodes a fixtures document.
func ParseFixtures(data []byte) ([]Fixture, error) {
	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	for i, fx := range f.Requests {
		if fx.Status == "" {
			f.Requests[i].Status = models.CreditRequestStatusPending
			continue
		}
		if !fx.Status.Valid() {
			return nil, fmt.Errorf("fixture %d: unknown status %q", i, fx.Status)
		}
	}
	return f.Requests, nil
}

// DemoFixtures returns the embedded demo requests.
func DemoFixtures() ([]Fixture, error) {
	return ParseFixtures(fixturesYAML)
}

// Seeder drives the workflow service so seeded data obeys the same rules as live data.
type Seeder struct {
	svc   *service.CreditService
	faker *gofakeit.Faker
}

// NewSeeder creates a Seeder. randSeed makes Random reproducible; 0 picks a random seed.
func NewSeeder(svc *service.CreditService, randSeed int64) *Seeder {
	return &Seeder{svc: svc, faker: gofakeit.New(randSeed)}
}

// Apply submits each fixture and then approves or rejects it as requested.
func (s *Seeder) Apply(ctx context.Context, fixtures []Fixture) ([]models.CreditRequest, error) {
	out := make([]models.CreditRequest, 0, len(fixtures))
	for _, fx := range fixtures {
		amount, err := decimal.NewFromString(fx.Amount)
		if err != nil {
			return out, fmt.Errorf("fixture for %s: amount %q: %w", fx.Customer, fx.Amount, err)
		}
		req, err := s.svc.Submit(ctx, fx.Cashier, service.SubmitInput{
			Customer: fx.Customer,
			Amount:   amount,
			Reason:   fx.Reason,
		})
		if err != nil {
			return out, err
		}

		switch fx.Status {
		case models.CreditRequestStatusApproved:
			req, err = s.svc.Approve(ctx, Reviewer, req.ID)
		case models.CreditRequestStatusRejected:
			req, err = s.svc.Reject(ctx, Reviewer, req.ID)
		}
		if err != nil {
			return out, err
		}
		out = append(out, *req)
	}
	return out, nil
}

// Demo applies the embedded fixtures.
func (s *Seeder) Demo(ctx context.Context) ([]models.CreditRequest, error) {
	fixtures, err := DemoFixtures()
	if err != nil {
		return nil, err
	}
	return s.Apply(ctx, fixtures)
}

// Random submits n generated pending requests.
func (s *Seeder) Random(ctx context.Context, n int) ([]models.CreditRequest, error) {
	fixtures := make([]Fixture, 0, n)
	for i := 0; i < n; i++ {
		fixtures = append(fixtures, Fixture{
			Cashier:  s.faker.Name(),
			Customer: s.faker.Name(),
			Amount:   decimal.NewFromFloat(s.faker.Price(10, 5000)).StringFixed(2),
			Reason:   s.faker.Sentence(6),
			Status:   models.CreditRequestStatusPending,
		})
	}
	return s.Apply(ctx, fixtures)
}
