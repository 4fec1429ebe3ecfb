package pos

import (
	"context"
	"errors"
	"log"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"branchpos/internal/database/models"
)

const (
	PinPurposeDelegation   = "delegation-assignment"
	PinPurposeOrderEditing = "order-editing-override"
)

// PinService stores and verifies the 4-digit confirmation PINs: one per
// (cashier, branch) and one branch-level administrative PIN per purpose.
// Secrets are bcrypt-hashed before they touch the database.
type PinService struct {
	db *gorm.DB
}

func NewPinService(db *gorm.DB) *PinService {
	return &PinService{db: db}
}

// ValidPinFormat accepts exactly 4 ASCII digits.
func ValidPinFormat(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return false
		}
	}
	return true
}

func hashPin(raw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func pinMatches(hash, raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}

func (s *PinService) SetCashierPin(ctx context.Context, cashierId, branchId int64, rawPin string) error {
	if !ValidPinFormat(rawPin) {
		return failf(FailValidation, "PIN must be exactly 4 digits")
	}
	hash, err := hashPin(rawPin)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pin models.CashierPin
		err := tx.Where("cashier_id = ? AND branch_id = ?", cashierId, branchId).First(&pin).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&models.CashierPin{
				CashierId: cashierId,
				BranchId:  branchId,
				PinHash:   hash,
				IsActive:  true,
			}).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&pin).Updates(map[string]interface{}{
			"pin_hash":  hash,
			"is_active": true,
		}).Error
	})
}

// VerifyCashierPin never returns an error: unknown scope, inactive record,
// malformed input and storage failures all read as false.
func (s *PinService) VerifyCashierPin(ctx context.Context, cashierId, branchId int64, rawPin string) bool {
	if !ValidPinFormat(rawPin) {
		return false
	}
	var pin models.CashierPin
	err := s.db.WithContext(ctx).
		Where("cashier_id = ? AND branch_id = ? AND is_active = ?", cashierId, branchId, true).
		First(&pin).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("pin: cashier pin lookup failed: %v", err)
		}
		return false
	}
	return pinMatches(pin.PinHash, rawPin)
}

// SetAdminPin upserts the single active administrative PIN for the
// (branch, purpose) scope.
func (s *PinService) SetAdminPin(ctx context.Context, branchId int64, purpose, rawPin string) error {
	if purpose != PinPurposeDelegation && purpose != PinPurposeOrderEditing {
		return failf(FailValidation, "unknown PIN purpose: %s", purpose)
	}
	if !ValidPinFormat(rawPin) {
		return failf(FailValidation, "PIN must be exactly 4 digits")
	}
	hash, err := hashPin(rawPin)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pin models.AdminPin
		err := tx.Where("branch_id = ? AND purpose = ?", branchId, purpose).First(&pin).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&models.AdminPin{
				BranchId: branchId,
				Purpose:  purpose,
				PinHash:  hash,
				IsActive: true,
			}).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&pin).Updates(map[string]interface{}{
			"pin_hash":  hash,
			"is_active": true,
		}).Error
	})
}

func (s *PinService) VerifyAdminPin(ctx context.Context, branchId int64, purpose, rawPin string) bool {
	if !ValidPinFormat(rawPin) {
		return false
	}
	var pin models.AdminPin
	err := s.db.WithContext(ctx).
		Where("branch_id = ? AND purpose = ? AND is_active = ?", branchId, purpose, true).
		First(&pin).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("pin: admin pin lookup failed: %v", err)
		}
		return false
	}
	return pinMatches(pin.PinHash, rawPin)
}
