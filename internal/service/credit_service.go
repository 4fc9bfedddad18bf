// Package service contains business logic for the credit workflow.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"creditflow/internal/codegen"
	"creditflow/internal/models"
	"creditflow/internal/observability"
	"creditflow/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// maxMintAttempts bounds regeneration after a live-code collision.
	maxMintAttempts = 8

	// DefaultCodeTTL applies to admin-issued codes minted without an explicit TTL.
	DefaultCodeTTL = 30 * time.Minute
	// DefaultRetention is how long expired codes are kept so they still report "expired".
	DefaultRetention = 24 * time.Hour
)

// Credit event types published to realtime subscribers.
const (
	EventRequestSubmitted = "credit_request.submitted"
	EventRequestApproved  = "credit_request.approved"
	EventRequestRejected  = "credit_request.rejected"
	EventCodeGenerated    = "verification_code.generated"
	EventCodeRevoked      = "verification_code.revoked"
	EventCodeUsed         = "verification_code.used"
)

// CodeGenerator produces candidate verification code strings.
type CodeGenerator interface {
	Generate() (string, error)
}

// EventPublisher fans credit workflow events out to realtime subscribers.
type EventPublisher interface {
	PublishCreditEvent(ctx context.Context, eventType string, payload interface{}) error
}

// Config tunes a CreditService. Zero values fall back to the package defaults.
type Config struct {
	Generator CodeGenerator
	Publisher EventPublisher
	Clock     func() time.Time
	// CodeTTL is the default lifetime of admin-issued codes.
	CodeTTL time.Duration
	// BoundCodeTTL is the lifetime of codes minted by an approval; zero means no expiry.
	BoundCodeTTL time.Duration
	Retention    time.Duration
}

// SubmitInput carries the cashier-supplied fields of a new credit request.
type SubmitInput struct {
	Customer string
	Amount   decimal.Decimal
	Reason   string
}

// MintOptions controls an admin-issued code.
type MintOptions struct {
	// Label tags the code with the cashier it is meant for; empty means DefaultCodeLabel.
	Label string
	// BoundCustomer scopes the code to one customer; empty leaves it open to anyone.
	BoundCustomer string
	// TTL overrides the configured default lifetime when positive.
	TTL time.Duration
}

// CreditService composes the request store, the verification store and the code
// generator into the approval workflow.
type CreditService struct {
	repo      repository.CreditRepository
	gen       CodeGenerator
	events    EventPublisher
	now       func() time.Time
	codeTTL   time.Duration
	boundTTL  time.Duration
	retention time.Duration
	log       *observability.StructuredLogger
}

// NewCreditService returns a new CreditService.
func NewCreditService(repo repository.CreditRepository, cfg Config) *CreditService {
	s := &CreditService{
		repo:      repo,
		gen:       cfg.Generator,
		events:    cfg.Publisher,
		now:       cfg.Clock,
		codeTTL:   cfg.CodeTTL,
		boundTTL:  cfg.BoundCodeTTL,
		retention: cfg.Retention,
		log:       observability.NewStructuredLogger(),
	}
	if s.gen == nil {
		s.gen = codegen.New()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.codeTTL <= 0 {
		s.codeTTL = DefaultCodeTTL
	}
	if s.boundTTL < 0 {
		s.boundTTL = 0
	}
	if s.retention <= 0 {
		s.retention = DefaultRetention
	}
	return s
}

// Submit records a new pending credit request on behalf of actor.
func (s *CreditService) Submit(ctx context.Context, actor string, in SubmitInput) (*models.CreditRequest, error) {
	span, ctx := observability.StartServiceSpan(ctx, "CreditService", "Submit")
	defer span.End()

	actor = strings.TrimSpace(actor)
	customer := strings.TrimSpace(in.Customer)
	reason := strings.TrimSpace(in.Reason)

	if actor == "" {
		return nil, models.NewValidationError("cashier", "Cashier is required")
	}
	if customer == "" {
		return nil, models.NewValidationError("customer", "Customer is required")
	}
	if !in.Amount.IsPositive() {
		return nil, models.NewValidationError("amount", "Amount must be greater than zero")
	}
	if !in.Amount.Equal(in.Amount.Truncate(models.AmountScale)) {
		return nil, models.NewValidationError("amount", "Amount must have at most 2 decimal places")
	}
	if in.Amount.GreaterThan(models.MaxAmount) {
		return nil, models.NewValidationError("amount", "Amount must not exceed "+models.MaxAmount.StringFixed(models.AmountScale))
	}
	if reason == "" {
		return nil, models.NewValidationError("reason", "Reason is required")
	}

	now := s.now()
	req := &models.CreditRequest{
		Cashier:   actor,
		Customer:  customer,
		Amount:    in.Amount,
		Reason:    reason,
		Status:    models.CreditRequestStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateRequest(ctx, req); err != nil {
		span.SetError(err)
		return nil, err
	}

	observability.CreditRequestsTotal.WithLabelValues(string(models.CreditRequestStatusPending)).Inc()
	s.record(ctx, models.ActivityRequestSubmitted, actor, fmt.Sprintf("request %d for %s", req.ID, req.Customer))
	s.publish(ctx, EventRequestSubmitted, requestEvent(req))
	return req, nil
}

// List returns every credit request in submission order.
func (s *CreditService) List(ctx context.Context) ([]models.CreditRequest, error) {
	return s.repo.ListRequests(ctx)
}

// Get returns a single credit request.
func (s *CreditService) Get(ctx context.Context, id uint) (*models.CreditRequest, error) {
	return s.repo.GetRequest(ctx, id)
}

// History returns the customer's requests in submission order. Unknown customers get an
// empty slice.
func (s *CreditService) History(ctx context.Context, customer string) ([]models.HistoryEntry, error) {
	return s.repo.History(ctx, strings.TrimSpace(customer))
}

// Approve moves a pending request to approved and binds a freshly minted code to it.
func (s *CreditService) Approve(ctx context.Context, actor string, id uint) (*models.CreditRequest, error) {
	span, ctx := observability.StartServiceSpan(ctx, "CreditService", "Approve")
	defer span.End()
	span.AddAttributes(observability.RequestIDAttr(id))

	current, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.CreditRequestStatusPending {
		return nil, models.NewInvalidStateError("credit request is not pending")
	}

	for attempt := 0; attempt < maxMintAttempts; attempt++ {
		now := s.now()
		code, err := s.newCode(actor, now, s.boundTTL)
		if err != nil {
			span.SetError(err)
			return nil, models.NewInternalError(err)
		}
		customer := current.Customer
		code.BoundCustomer = &customer
		code.RequestID = &current.ID
		code.Label = current.Cashier

		approved, err := s.repo.ResolveRequest(ctx, repository.ResolveParams{
			ID:       id,
			Status:   models.CreditRequestStatusApproved,
			Reviewer: actor,
			At:       now,
			Code:     code,
		})
		if errors.Is(err, repository.ErrCodeCollision) {
			continue
		}
		if err != nil {
			span.SetError(err)
			return nil, err
		}

		observability.CreditRequestsTotal.WithLabelValues(string(models.CreditRequestStatusApproved)).Inc()
		observability.CodesMintedTotal.WithLabelValues("bound").Inc()
		s.log.LogServiceCall(ctx, "CreditService", "Approve", map[string]interface{}{
			"request_id": approved.ID,
			"code_fp":    observability.CodeFingerprint(code.Code),
		})
		s.record(ctx, models.ActivityRequestApproved, actor, fmt.Sprintf("request %d for %s", approved.ID, approved.Customer))
		s.publish(ctx, EventRequestApproved, requestEvent(approved))
		return approved, nil
	}

	err = fmt.Errorf("no unique verification code after %d attempts", maxMintAttempts)
	span.SetError(err)
	return nil, models.NewInternalError(err)
}

// Reject moves a pending request to rejected.
func (s *CreditService) Reject(ctx context.Context, actor string, id uint) (*models.CreditRequest, error) {
	span, ctx := observability.StartServiceSpan(ctx, "CreditService", "Reject")
	defer span.End()
	span.AddAttributes(observability.RequestIDAttr(id))

	rejected, err := s.repo.ResolveRequest(ctx, repository.ResolveParams{
		ID:       id,
		Status:   models.CreditRequestStatusRejected,
		Reviewer: actor,
		At:       s.now(),
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	observability.CreditRequestsTotal.WithLabelValues(string(models.CreditRequestStatusRejected)).Inc()
	s.record(ctx, models.ActivityRequestRejected, actor, fmt.Sprintf("request %d for %s", rejected.ID, rejected.Customer))
	s.publish(ctx, EventRequestRejected, requestEvent(rejected))
	return rejected, nil
}

func (s *CreditService) newCode(actor string, now time.Time, ttl time.Duration) (*models.VerificationCode, error) {
	value, err := s.gen.Generate()
	if err != nil {
		return nil, err
	}
	code := &models.VerificationCode{
		ID:        uuid.NewString(),
		Code:      value,
		Label:     models.DefaultCodeLabel,
		IssuedBy:  actor,
		CreatedAt: now,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		code.ExpiresAt = &exp
	}
	return code, nil
}

// Mint issues a free-standing code outside the approval flow.
func (s *CreditService) Mint(ctx context.Context, actor string, opts MintOptions) (*models.VerificationCode, error) {
	span, ctx := observability.StartServiceSpan(ctx, "CreditService", "Mint")
	defer span.End()

	if opts.TTL < 0 {
		return nil, models.NewValidationError("ttlMinutes", "TTL must be positive")
	}
	ttl := opts.TTL
	if ttl == 0 {
		ttl = s.codeTTL
	}
	label := strings.TrimSpace(opts.Label)
	if label == "" {
		label = models.DefaultCodeLabel
	}
	bound := strings.TrimSpace(opts.BoundCustomer)

	for attempt := 0; attempt < maxMintAttempts; attempt++ {
		code, err := s.newCode(actor, s.now(), ttl)
		if err != nil {
			span.SetError(err)
			return nil, models.NewInternalError(err)
		}
		code.Label = label
		if bound != "" {
			code.BoundCustomer = &bound
		}

		err = s.repo.CreateCode(ctx, code)
		if errors.Is(err, repository.ErrCodeCollision) {
			continue
		}
		if err != nil {
			span.SetError(err)
			return nil, err
		}

		kind := "free"
		if bound != "" {
			kind = "bound"
		}
		observability.CodesMintedTotal.WithLabelValues(kind).Inc()
		s.log.LogServiceCall(ctx, "CreditService", "Mint", map[string]interface{}{
			"code_id": code.ID,
			"code_fp": observability.CodeFingerprint(code.Code),
			"label":   label,
		})
		s.record(ctx, models.ActivityCodeGenerated, actor, fmt.Sprintf("code for %s", label))
		s.publish(ctx, EventCodeGenerated, codeEvent(code))
		return code, nil
	}

	err := fmt.Errorf("no unique verification code after %d attempts", maxMintAttempts)
	span.SetError(err)
	return nil, models.NewInternalError(err)
}

// ListCodes returns every stored code, newest first.
func (s *CreditService) ListCodes(ctx context.Context) ([]models.VerificationCode, error) {
	return s.repo.ListCodes(ctx)
}

// Redeem consumes a code for customer. Failures are reported through the result, not
// the error, which is reserved for storage faults.
func (s *CreditService) Redeem(ctx context.Context, actor, code, customer string) (*models.RedeemResult, error) {
	span, ctx := observability.StartServiceSpan(ctx, "CreditService", "Redeem")
	defer span.End()

	code = codegen.Normalize(code)
	customer = strings.TrimSpace(customer)
	span.AddAttributes(observability.CodeAttr(code))

	result := &models.RedeemResult{}
	if !codegen.WellFormed(code) {
		result.Reason = models.RedeemReasonNotFound
		observability.RedemptionsTotal.WithLabelValues(string(result.Reason)).Inc()
		return result, nil
	}

	redeemed, reason, err := s.repo.RedeemCode(ctx, code, customer, actor, s.now())
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	observability.RedemptionsTotal.WithLabelValues(observability.RedemptionResult(string(reason))).Inc()
	if reason != models.RedeemReasonNone {
		result.Reason = reason
		return result, nil
	}

	result.Valid = true
	if redeemed.RequestID != nil {
		req, err := s.repo.GetRequest(ctx, *redeemed.RequestID)
		switch {
		case err == nil:
			result.Request = req
		case models.IsCode(err, models.CodeNotFound):
			// The code stays consumed even if its request cannot be shown.
		default:
			span.SetError(err)
			return nil, err
		}
	}

	s.record(ctx, models.ActivityCodeUsed, actor, fmt.Sprintf("code for %s", customerOrLabel(customer, redeemed.Label)))
	s.publish(ctx, EventCodeUsed, codeEvent(redeemed))
	return result, nil
}

// Revoke deletes a code so that later redemptions report not_found.
func (s *CreditService) Revoke(ctx context.Context, actor, id string) error {
	span, ctx := observability.StartServiceSpan(ctx, "CreditService", "Revoke")
	defer span.End()

	if err := s.repo.DeleteCode(ctx, id); err != nil {
		span.SetError(err)
		return err
	}
	s.record(ctx, models.ActivityCodeRevoked, actor, "code "+id)
	s.publish(ctx, EventCodeRevoked, map[string]string{"id": id})
	return nil
}

// Activity returns the most recent audit entries, newest first.
func (s *CreditService) Activity(ctx context.Context, limit int) ([]models.ActivityEntry, error) {
	return s.repo.ListActivity(ctx, limit)
}

func (s *CreditService) record(ctx context.Context, action models.ActivityAction, actor, subject string) {
	entry := &models.ActivityEntry{
		ID:        uuid.NewString(),
		Action:    action,
		Actor:     actor,
		Subject:   subject,
		CreatedAt: s.now(),
	}
	if err := s.repo.AppendActivity(ctx, entry); err != nil {
		observability.LogAsyncOperationError(ctx, "append_activity", err, map[string]interface{}{
			"action": string(action),
		})
	}
}

func (s *CreditService) publish(ctx context.Context, eventType string, payload interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishCreditEvent(ctx, eventType, payload); err != nil {
		observability.LogAsyncOperationError(ctx, "publish_credit_event", err, map[string]interface{}{
			"event_type": eventType,
		})
	}
}

// requestEvent is the broadcast view of a request, stripped of its verification code.
func requestEvent(req *models.CreditRequest) models.CreditRequest {
	view := *req
	view.VerificationCode = nil
	return view
}

// codeEvent is the broadcast view of a code; the secret itself is never broadcast.
func codeEvent(code *models.VerificationCode) map[string]interface{} {
	return map[string]interface{}{
		"id":            code.ID,
		"label":         code.Label,
		"boundCustomer": code.BoundCustomer,
		"requestId":     code.RequestID,
		"expiresAt":     code.ExpiresAt,
		"used":          code.Used,
	}
}

func customerOrLabel(customer, label string) string {
	if customer != "" {
		return customer
	}
	return label
}
