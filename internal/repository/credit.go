// Package repository provides data access layer implementations for the credit workflow.
package repository

import (
	"context"
	"errors"
	"time"

	"creditflow/internal/models"
	"creditflow/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrCodeCollision is returned when a code string equals another live code. Callers
// regenerate and retry.
var ErrCodeCollision = errors.New("verification code collides with a live code")

// ResolveParams describes an admin decision on a pending request.
type ResolveParams struct {
	ID       uint
	Status   models.CreditRequestStatus
	Reviewer string
	At       time.Time
	// Code must be set when approving and nil when rejecting.
	Code *models.VerificationCode
}

// CreditRepository defines the persistence contract of the credit workflow. Every
// implementation must make ResolveRequest and RedeemCode atomic with respect to
// concurrent callers on the same request or code.
type CreditRepository interface {
	CreateRequest(ctx context.Context, req *models.CreditRequest) error
	GetRequest(ctx context.Context, id uint) (*models.CreditRequest, error)
	ListRequests(ctx context.Context) ([]models.CreditRequest, error)
	History(ctx context.Context, customer string) ([]models.HistoryEntry, error)
	ResolveRequest(ctx context.Context, p ResolveParams) (*models.CreditRequest, error)

	CreateCode(ctx context.Context, code *models.VerificationCode) error
	ListCodes(ctx context.Context) ([]models.VerificationCode, error)
	RedeemCode(ctx context.Context, code, customer, actor string, now time.Time) (*models.VerificationCode, models.RedeemReason, error)
	DeleteCode(ctx context.Context, id string) error
	DeleteExpiredCodes(ctx context.Context, before time.Time) (int64, error)

	AppendActivity(ctx context.Context, entry *models.ActivityEntry) error
	ListActivity(ctx context.Context, limit int) ([]models.ActivityEntry, error)

	Close() error
}

// creditRepository implements CreditRepository on top of gorm.
type creditRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewCreditRepository creates a gorm-backed credit repository.
func NewCreditRepository(db *gorm.DB) CreditRepository {
	return &creditRepository{db: db, log: observability.NewRepoLogger("credit_requests")}
}

func (r *creditRepository) CreateRequest(ctx context.Context, req *models.CreditRequest) error {
	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.log.LogCreate(ctx, map[string]interface{}{"id": req.ID, "customer": req.Customer})
	return nil
}

func (r *creditRepository) GetRequest(ctx context.Context, id uint) (*models.CreditRequest, error) {
	var req models.CreditRequest
	if err := r.db.WithContext(ctx).First(&req, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Credit request", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &req, nil
}

func (r *creditRepository) ListRequests(ctx context.Context) ([]models.CreditRequest, error) {
	requests := []models.CreditRequest{}
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&requests).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return requests, nil
}

func (r *creditRepository) History(ctx context.Context, customer string) ([]models.HistoryEntry, error) {
	var requests []models.CreditRequest
	if err := r.db.WithContext(ctx).
		Select("id", "amount", "status", "created_at").
		Where("customer = ?", customer).
		Order("id ASC").
		Find(&requests).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	entries := make([]models.HistoryEntry, 0, len(requests))
	for i := range requests {
		entries = append(entries, requests[i].HistoryEntry())
	}
	return entries, nil
}

func (r *creditRepository) ResolveRequest(ctx context.Context, p ResolveParams) (*models.CreditRequest, error) {
	var resolved models.CreditRequest

	txErr := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.CreditRequest
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&current, p.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("Credit request", p.ID)
			}
			return err
		}
		if current.Status != models.CreditRequestStatusPending {
			return models.NewInvalidStateError("credit request is not pending")
		}

		updates := map[string]any{
			"status":      p.Status,
			"reviewed_by": p.Reviewer,
			"reviewed_at": p.At,
			"updated_at":  p.At,
		}
		if p.Code != nil {
			if err := ensureNoLiveCollision(tx, p.Code.Code, p.Code.CreatedAt); err != nil {
				return err
			}
			if err := tx.Create(p.Code).Error; err != nil {
				return err
			}
			updates["verification_code"] = p.Code.Code
		}

		res := tx.Model(&models.CreditRequest{}).
			Where("id = ? AND status = ?", p.ID, models.CreditRequestStatusPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewInvalidStateError("credit request is not pending")
		}

		return tx.First(&resolved, p.ID).Error
	})
	if txErr != nil {
		var appErr *models.AppError
		if errors.As(txErr, &appErr) || errors.Is(txErr, ErrCodeCollision) {
			return nil, txErr
		}
		r.log.LogError(ctx, txErr, "resolve")
		return nil, models.NewInternalError(txErr)
	}

	r.log.LogUpdate(ctx, map[string]interface{}{"id": resolved.ID, "status": resolved.Status})
	return &resolved, nil
}

func ensureNoLiveCollision(tx *gorm.DB, code string, now time.Time) error {
	var count int64
	if err := tx.Model(&models.VerificationCode{}).
		Where("code = ? AND used = ? AND (expires_at IS NULL OR expires_at > ?)", code, false, now).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrCodeCollision
	}
	return nil
}

func (r *creditRepository) CreateCode(ctx context.Context, code *models.VerificationCode) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureNoLiveCollision(tx, code.Code, code.CreatedAt); err != nil {
			return err
		}
		return tx.Create(code).Error
	})
	if err != nil {
		if errors.Is(err, ErrCodeCollision) {
			return err
		}
		r.log.LogError(ctx, err, "create_code")
		return models.NewInternalError(err)
	}
	return nil
}

func (r *creditRepository) ListCodes(ctx context.Context) ([]models.VerificationCode, error) {
	codes := []models.VerificationCode{}
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&codes).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return codes, nil
}

func (r *creditRepository) RedeemCode(ctx context.Context, code, customer, actor string, now time.Time) (*models.VerificationCode, models.RedeemReason, error) {
	var picked *models.VerificationCode
	reason := models.RedeemReasonNone

	txErr := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []models.VerificationCode
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("code = ?", code).
			Find(&candidates).Error; err != nil {
			return err
		}
		if len(candidates) == 0 {
			reason = models.RedeemReasonNotFound
			return nil
		}

		picked = models.PickRedeemable(candidates, now)
		if reason = picked.Check(customer, now); reason != models.RedeemReasonNone {
			return nil
		}

		// The used = false guard keeps the first redemption the only winner even
		// where row locks are not available.
		res := tx.Model(&models.VerificationCode{}).
			Where("id = ? AND used = ?", picked.ID, false).
			Updates(map[string]any{"used": true, "used_at": now, "used_by": actor})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			reason = models.RedeemReasonUsed
			return nil
		}
		picked.MarkUsed(actor, now)
		return nil
	})
	if txErr != nil {
		r.log.LogError(ctx, txErr, "redeem")
		return nil, models.RedeemReasonNone, models.NewInternalError(txErr)
	}
	return picked, reason, nil
}

func (r *creditRepository) DeleteCode(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.VerificationCode{})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Verification code", id)
	}
	r.log.LogDelete(ctx, map[string]interface{}{"code_id": id})
	return nil
}

func (r *creditRepository) DeleteExpiredCodes(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", before).
		Delete(&models.VerificationCode{})
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}

func (r *creditRepository) AppendActivity(ctx context.Context, entry *models.ActivityEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *creditRepository) ListActivity(ctx context.Context, limit int) ([]models.ActivityEntry, error) {
	entries := []models.ActivityEntry{}
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return entries, nil
}

func (r *creditRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
