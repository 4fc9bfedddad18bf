package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"creditflow/internal/models"
)

// memoryRepository keeps the whole workflow state in process. A single mutex guards
// every operation so each one is a critical section.
type memoryRepository struct {
	mu       sync.Mutex
	nextID   uint
	requests map[uint]*models.CreditRequest
	codes    map[string]*models.VerificationCode
	byCode   map[string][]string
	activity []models.ActivityEntry
}

// NewMemoryRepository returns an empty in-process repository.
func NewMemoryRepository() CreditRepository {
	return &memoryRepository{
		requests: make(map[uint]*models.CreditRequest),
		codes:    make(map[string]*models.VerificationCode),
		byCode:   make(map[string][]string),
	}
}

func cloneRequest(r *models.CreditRequest) *models.CreditRequest {
	out := *r
	if r.VerificationCode != nil {
		v := *r.VerificationCode
		out.VerificationCode = &v
	}
	if r.ReviewedBy != nil {
		v := *r.ReviewedBy
		out.ReviewedBy = &v
	}
	if r.ReviewedAt != nil {
		v := *r.ReviewedAt
		out.ReviewedAt = &v
	}
	return &out
}

func cloneCode(c *models.VerificationCode) *models.VerificationCode {
	out := *c
	if c.BoundCustomer != nil {
		v := *c.BoundCustomer
		out.BoundCustomer = &v
	}
	if c.RequestID != nil {
		v := *c.RequestID
		out.RequestID = &v
	}
	if c.ExpiresAt != nil {
		v := *c.ExpiresAt
		out.ExpiresAt = &v
	}
	if c.UsedAt != nil {
		v := *c.UsedAt
		out.UsedAt = &v
	}
	if c.UsedBy != nil {
		v := *c.UsedBy
		out.UsedBy = &v
	}
	return &out
}

func (m *memoryRepository) CreateRequest(_ context.Context, req *models.CreditRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	req.ID = m.nextID
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = req.CreatedAt
	}
	m.requests[req.ID] = cloneRequest(req)
	return nil
}

func (m *memoryRepository) GetRequest(_ context.Context, id uint) (*models.CreditRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[id]
	if !ok {
		return nil, models.NewNotFoundError("Credit request", id)
	}
	return cloneRequest(req), nil
}

func (m *memoryRepository) ListRequests(_ context.Context) ([]models.CreditRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.CreditRequest, 0, len(m.requests))
	for id := uint(1); id <= m.nextID; id++ {
		if req, ok := m.requests[id]; ok {
			out = append(out, *cloneRequest(req))
		}
	}
	return out, nil
}

func (m *memoryRepository) History(_ context.Context, customer string) ([]models.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := []models.HistoryEntry{}
	for id := uint(1); id <= m.nextID; id++ {
		if req, ok := m.requests[id]; ok && req.Customer == customer {
			entries = append(entries, req.HistoryEntry())
		}
	}
	return entries, nil
}

func (m *memoryRepository) ResolveRequest(_ context.Context, p ResolveParams) (*models.CreditRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[p.ID]
	if !ok {
		return nil, models.NewNotFoundError("Credit request", p.ID)
	}
	if req.Status != models.CreditRequestStatusPending {
		return nil, models.NewInvalidStateError("credit request is not pending")
	}

	if p.Code != nil {
		if m.liveCollisionLocked(p.Code.Code, p.Code.CreatedAt) {
			return nil, ErrCodeCollision
		}
		m.insertCodeLocked(p.Code)
		code := p.Code.Code
		req.VerificationCode = &code
	}

	reviewer, at := p.Reviewer, p.At
	req.Status = p.Status
	req.ReviewedBy = &reviewer
	req.ReviewedAt = &at
	req.UpdatedAt = at
	return cloneRequest(req), nil
}

func (m *memoryRepository) liveCollisionLocked(code string, now time.Time) bool {
	for _, id := range m.byCode[code] {
		if m.codes[id].Live(now) {
			return true
		}
	}
	return false
}

func (m *memoryRepository) insertCodeLocked(code *models.VerificationCode) {
	m.codes[code.ID] = cloneCode(code)
	m.byCode[code.Code] = append(m.byCode[code.Code], code.ID)
}

func (m *memoryRepository) CreateCode(_ context.Context, code *models.VerificationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.liveCollisionLocked(code.Code, code.CreatedAt) {
		return ErrCodeCollision
	}
	m.insertCodeLocked(code)
	return nil
}

func (m *memoryRepository) ListCodes(_ context.Context) ([]models.VerificationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.VerificationCode, 0, len(m.codes))
	for _, c := range m.codes {
		out = append(out, *cloneCode(c))
	}
	sortCodesNewestFirst(out)
	return out, nil
}

func sortCodesNewestFirst(codes []models.VerificationCode) {
	sort.SliceStable(codes, func(i, j int) bool {
		if codes[i].CreatedAt.Equal(codes[j].CreatedAt) {
			return codes[i].ID < codes[j].ID
		}
		return codes[i].CreatedAt.After(codes[j].CreatedAt)
	})
}

func (m *memoryRepository) RedeemCode(_ context.Context, code, customer, actor string, now time.Time) (*models.VerificationCode, models.RedeemReason, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := m.byCode[code]
	if len(ids) == 0 {
		return nil, models.RedeemReasonNotFound, nil
	}
	candidates := make([]models.VerificationCode, 0, len(ids))
	for _, id := range ids {
		candidates = append(candidates, *m.codes[id])
	}

	picked := models.PickRedeemable(candidates, now)
	if reason := picked.Check(customer, now); reason != models.RedeemReasonNone {
		return cloneCode(picked), reason, nil
	}

	stored := m.codes[picked.ID]
	stored.MarkUsed(actor, now)
	return cloneCode(stored), models.RedeemReasonNone, nil
}

func (m *memoryRepository) DeleteCode(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.codes[id]
	if !ok {
		return models.NewNotFoundError("Verification code", id)
	}
	m.removeCodeLocked(c)
	return nil
}

func (m *memoryRepository) removeCodeLocked(c *models.VerificationCode) {
	delete(m.codes, c.ID)
	ids := m.byCode[c.Code]
	for i, id := range ids {
		if id == c.ID {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(m.byCode, c.Code)
	} else {
		m.byCode[c.Code] = ids
	}
}

func (m *memoryRepository) DeleteExpiredCodes(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for _, c := range m.codes {
		if c.ExpiresAt != nil && c.ExpiresAt.Before(before) {
			m.removeCodeLocked(c)
			removed++
		}
	}
	return removed, nil
}

func (m *memoryRepository) AppendActivity(_ context.Context, entry *models.ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.activity = append(m.activity, *entry)
	return nil
}

func (m *memoryRepository) ListActivity(_ context.Context, limit int) ([]models.ActivityEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.activity)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.ActivityEntry, 0, n)
	for i := len(m.activity) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.activity[i])
	}
	return out, nil
}

func (m *memoryRepository) Close() error { return nil }
