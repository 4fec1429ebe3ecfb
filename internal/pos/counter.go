package pos

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"branchpos/internal/database/models"
)

// CounterService allocates the per-branch sequential order number. Next must
// run inside the same transaction that creates the order so a failed
// submission rolls the increment back with it (gaps from committed-then-reset
// epochs are fine, duplicates are not).
type CounterService struct {
	db *gorm.DB
}

func NewCounterService(db *gorm.DB) *CounterService {
	return &CounterService{db: db}
}

// Next increments and returns the counter for the branch, taking a row-level
// exclusive lock so two concurrent submissions on the same branch cannot read
// the same value. A missing row is created at 1; if two transactions race on
// the first order of a branch, the unique index on branch_id fails one of
// them and the caller retries the whole submission.
func (s *CounterService) Next(tx *gorm.DB, branchId int64) (int64, error) {
	var counter models.OrderCounter
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("branch_id = ?", branchId).
		First(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		counter = models.OrderCounter{BranchId: branchId, CurrentCounter: 1}
		if err := tx.Create(&counter).Error; err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}

	counter.CurrentCounter++
	if err := tx.Model(&models.OrderCounter{}).
		Where("id = ?", counter.ID).
		Updates(map[string]interface{}{
			"current_counter": counter.CurrentCounter,
			"updated_at":      time.Now().UTC(),
		}).Error; err != nil {
		return 0, err
	}
	return counter.CurrentCounter, nil
}

// Reset zeroes the branch counter and stamps the reset date; subsequent Next
// calls resume from 1. Invoked externally (admin action), never scheduled
// from inside this service.
func (s *CounterService) Reset(ctx context.Context, branchId int64) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var counter models.OrderCounter
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("branch_id = ?", branchId).
			First(&counter).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&models.OrderCounter{
				BranchId:       branchId,
				CurrentCounter: 0,
				LastResetDate:  &now,
			}).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&models.OrderCounter{}).
			Where("id = ?", counter.ID).
			Updates(map[string]interface{}{
				"current_counter": 0,
				"last_reset_date": now,
				"updated_at":      now,
			}).Error
	})
}

func (s *CounterService) ResetAll(ctx context.Context) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&models.OrderCounter{}).
		Where("1 = 1").
		Updates(map[string]interface{}{
			"current_counter": 0,
			"last_reset_date": now,
			"updated_at":      now,
		}).Error
}
