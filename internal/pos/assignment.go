package pos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"branchpos/internal/database/models"
)

// AssignmentDirectory maintains the waiter-to-cashier routing table. At most
// one assignment per (waiter, branch); setting a new one replaces the old in
// place so the unique index never sees two rows for the same scope.
type AssignmentDirectory struct {
	db *gorm.DB
}

func NewAssignmentDirectory(db *gorm.DB) *AssignmentDirectory {
	return &AssignmentDirectory{db: db}
}

// Get returns (nil, nil) when the waiter has no assignment in the branch.
func (a *AssignmentDirectory) Get(ctx context.Context, waiterId, branchId int64) (*models.WaiterAssignment, error) {
	var assignment models.WaiterAssignment
	err := a.db.WithContext(ctx).
		Where("waiter_id = ? AND branch_id = ?", waiterId, branchId).
		First(&assignment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

// Set points the waiter at the cashier, replacing any previous assignment.
// The target must be an active cashier in the same branch.
func (a *AssignmentDirectory) Set(ctx context.Context, waiterId, branchId, cashierId int64, assignedById *int64) (*models.WaiterAssignment, error) {
	var cashier models.User
	err := a.db.WithContext(ctx).First(&cashier, cashierId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, failf(FailNotFound, "cashier %d not found", cashierId)
	}
	if err != nil {
		return nil, err
	}
	if cashier.Role != models.RoleCashier || !cashier.IsActive {
		return nil, failf(FailValidation, "user %d is not an active cashier", cashierId)
	}
	if cashier.BranchId != branchId {
		return nil, failf(FailValidation, "cashier %d belongs to another branch", cashierId)
	}

	var result *models.WaiterAssignment
	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var assignment models.WaiterAssignment
		err := tx.Where("waiter_id = ? AND branch_id = ?", waiterId, branchId).
			First(&assignment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			assignment = models.WaiterAssignment{
				WaiterId:     waiterId,
				BranchId:     branchId,
				CashierId:    cashierId,
				AssignedById: assignedById,
			}
			if err := tx.Create(&assignment).Error; err != nil {
				return err
			}
			result = &assignment
			return nil
		}
		if err != nil {
			return err
		}
		assignment.CashierId = cashierId
		assignment.AssignedById = assignedById
		if err := tx.Save(&assignment).Error; err != nil {
			return err
		}
		result = &assignment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Clear removes the waiter's assignment. Returns false when there was nothing
// to remove.
func (a *AssignmentDirectory) Clear(ctx context.Context, waiterId, branchId int64) (bool, error) {
	res := a.db.WithContext(ctx).
		Where("waiter_id = ? AND branch_id = ?", waiterId, branchId).
		Delete(&models.WaiterAssignment{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
