package repository

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"

	"creditflow/internal/models"
)

var (
	requestsBucket = []byte("credit_requests")
	codesBucket    = []byte("verification_codes")
	activityBucket = []byte("activity")
)

// boltRepository stores the workflow in a single BoltDB file. Bolt allows one
// read-write transaction at a time, which makes every Update a critical section.
type boltRepository struct {
	db *bolt.DB
}

// OpenBoltRepository opens (or creates) the database file at path and ensures its buckets exist.
func OpenBoltRepository(path string) (CreditRepository, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{requestsBucket, codesBucket, activityBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bolt buckets: %w", err)
	}

	return &boltRepository{db: db}, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

func (s *boltRepository) CreateRequest(_ context.Context, req *models.CreditRequest) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(requestsBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		req.ID = uint(seq)
		if req.UpdatedAt.IsZero() {
			req.UpdatedAt = req.CreatedAt
		}
		return putJSON(b, itob(seq), req)
	})
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func getRequest(tx *bolt.Tx, id uint) (*models.CreditRequest, error) {
	v := tx.Bucket(requestsBucket).Get(itob(uint64(id)))
	if v == nil {
		return nil, models.NewNotFoundError("Credit request", id)
	}
	var req models.CreditRequest
	if err := json.Unmarshal(v, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *boltRepository) GetRequest(_ context.Context, id uint) (*models.CreditRequest, error) {
	var req *models.CreditRequest
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		req, err = getRequest(tx, id)
		return err
	})
	if err != nil {
		return nil, wrapBoltError(err)
	}
	return req, nil
}

func (s *boltRepository) eachRequest(fn func(*models.CreditRequest)) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(requestsBucket).ForEach(func(_, v []byte) error {
			var req models.CreditRequest
			if err := json.Unmarshal(v, &req); err != nil {
				return err
			}
			fn(&req)
			return nil
		})
	})
}

func (s *boltRepository) ListRequests(_ context.Context) ([]models.CreditRequest, error) {
	items := []models.CreditRequest{}
	if err := s.eachRequest(func(r *models.CreditRequest) { items = append(items, *r) }); err != nil {
		return nil, models.NewInternalError(err)
	}
	return items, nil
}

func (s *boltRepository) History(_ context.Context, customer string) ([]models.HistoryEntry, error) {
	entries := []models.HistoryEntry{}
	err := s.eachRequest(func(r *models.CreditRequest) {
		if r.Customer == customer {
			entries = append(entries, r.HistoryEntry())
		}
	})
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return entries, nil
}

func (s *boltRepository) ResolveRequest(_ context.Context, p ResolveParams) (*models.CreditRequest, error) {
	var resolved *models.CreditRequest

	err := s.db.Update(func(tx *bolt.Tx) error {
		req, err := getRequest(tx, p.ID)
		if err != nil {
			return err
		}
		if req.Status != models.CreditRequestStatusPending {
			return models.NewInvalidStateError("credit request is not pending")
		}

		if p.Code != nil {
			if err := insertCode(tx, p.Code); err != nil {
				return err
			}
			code := p.Code.Code
			req.VerificationCode = &code
		}

		reviewer, at := p.Reviewer, p.At
		req.Status = p.Status
		req.ReviewedBy = &reviewer
		req.ReviewedAt = &at
		req.UpdatedAt = at
		resolved = req
		return putJSON(tx.Bucket(requestsBucket), itob(uint64(req.ID)), req)
	})
	if err != nil {
		return nil, wrapBoltError(err)
	}
	return resolved, nil
}

// codesMatching scans the codes bucket. Code volume is bounded by the retention
// sweep so a secondary index is not kept.
func codesMatching(tx *bolt.Tx, code string) ([]models.VerificationCode, error) {
	var out []models.VerificationCode
	err := tx.Bucket(codesBucket).ForEach(func(_, v []byte) error {
		var c models.VerificationCode
		if err := json.Unmarshal(v, &c); err != nil {
			return err
		}
		if c.Code == code {
			out = append(out, c)
		}
		return nil
	})
	return out, err
}

func insertCode(tx *bolt.Tx, code *models.VerificationCode) error {
	existing, err := codesMatching(tx, code.Code)
	if err != nil {
		return err
	}
	for i := range existing {
		if existing[i].Live(code.CreatedAt) {
			return ErrCodeCollision
		}
	}
	return putJSON(tx.Bucket(codesBucket), []byte(code.ID), code)
}

func (s *boltRepository) CreateCode(_ context.Context, code *models.VerificationCode) error {
	err := s.db.Update(func(tx *bolt.Tx) error { return insertCode(tx, code) })
	if err != nil {
		return wrapBoltError(err)
	}
	return nil
}

func (s *boltRepository) ListCodes(_ context.Context) ([]models.VerificationCode, error) {
	codes := []models.VerificationCode{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(codesBucket).ForEach(func(_, v []byte) error {
			var c models.VerificationCode
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			codes = append(codes, c)
			return nil
		})
	})
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	sortCodesNewestFirst(codes)
	return codes, nil
}

func (s *boltRepository) RedeemCode(_ context.Context, code, customer, actor string, now time.Time) (*models.VerificationCode, models.RedeemReason, error) {
	var picked *models.VerificationCode
	reason := models.RedeemReasonNone

	err := s.db.Update(func(tx *bolt.Tx) error {
		candidates, err := codesMatching(tx, code)
		if err != nil {
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
		picked.MarkUsed(actor, now)
		return putJSON(tx.Bucket(codesBucket), []byte(picked.ID), picked)
	})
	if err != nil {
		return nil, models.RedeemReasonNone, models.NewInternalError(err)
	}
	return picked, reason, nil
}

func (s *boltRepository) DeleteCode(_ context.Context, id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(codesBucket)
		if b.Get([]byte(id)) == nil {
			return models.NewNotFoundError("Verification code", id)
		}
		return b.Delete([]byte(id))
	})
	return wrapBoltError(err)
}

func (s *boltRepository) DeleteExpiredCodes(_ context.Context, before time.Time) (int64, error) {
	var removed int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(codesBucket)
		// Bolt forbids mutating a bucket while iterating it.
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var c models.VerificationCode
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			if c.ExpiresAt != nil && c.ExpiresAt.Before(before) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return removed, nil
}

func (s *boltRepository) AppendActivity(_ context.Context, entry *models.ActivityEntry) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(activityBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return putJSON(b, itob(seq), entry)
	})
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (s *boltRepository) ListActivity(_ context.Context, limit int) ([]models.ActivityEntry, error) {
	entries := []models.ActivityEntry{}
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(activityBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			var e models.ActivityEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return entries, nil
}

func (s *boltRepository) Close() error {
	return s.db.Close()
}

// wrapBoltError passes through domain errors and hides everything else behind an internal error.
func wrapBoltError(err error) error {
	if err == nil {
		return nil
	}
	if err == ErrCodeCollision {
		return err
	}
	if _, ok := err.(*models.AppError); ok {
		return err
	}
	return models.NewInternalError(err)
}
