package pos

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"branchpos/internal/database/models"
	"branchpos/internal/realtime"
)

// ValidateTransferBatch enforces the all-or-nothing rule: every requested
// order must have matched the transferable set (pending, waiter-submitted,
// delegated to the source cashier) or the whole batch is rejected.
func ValidateTransferBatch(requested []int64, loaded []models.Order) error {
	if len(loaded) == len(requested) {
		return nil
	}
	matched := make(map[int64]bool, len(loaded))
	for _, o := range loaded {
		matched[o.ID] = true
	}
	for _, id := range requested {
		if !matched[id] {
			return failf(FailTransferConflict,
				"order %d is not transferable from this cashier", id)
		}
	}
	return failf(FailTransferConflict, "transfer batch did not match requested orders")
}

// TransferService moves a batch of delegated orders from one cashier to
// another, atomically: either every order in the batch moves or none do.
type TransferService struct {
	db     *gorm.DB
	users  UserLookup
	router realtime.Router
}

func NewTransferService(db *gorm.DB, directory *Directory, router realtime.Router) *TransferService {
	return &TransferService{db: db, users: directory, router: router}
}

func (s *TransferService) Transfer(ctx context.Context, actor ActorContext, orderIds []int64, targetCashierId int64) ([]models.Order, error) {
	if !actor.Role.CanCheckout() {
		return nil, failf(FailForbidden, "role %s cannot transfer delegated orders", actor.Role)
	}
	if len(orderIds) == 0 {
		return nil, failf(FailValidation, "no orders selected for transfer")
	}
	if targetCashierId == actor.ID {
		return nil, failf(FailValidation, "cannot transfer orders to yourself")
	}

	target, err := s.users.UserByID(ctx, targetCashierId)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, failf(FailNotFound, "cashier %d not found", targetCashierId)
	}
	if target.Role != models.RoleCashier || !target.Active {
		return nil, failf(FailValidation, "user %d is not an active cashier", targetCashierId)
	}
	if target.BranchId != actor.BranchId {
		return nil, failf(FailValidation, "cashier %d belongs to another branch", targetCashierId)
	}

	var transferred []models.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var orders []models.Order
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ? AND delegated_to_id = ? AND status = ? AND notes LIKE ?",
				orderIds, actor.ID, models.OrderPending, "%"+WaiterOrderTag+"%").
			Find(&orders).Error
		if err != nil {
			return err
		}
		if err := ValidateTransferBatch(orderIds, orders); err != nil {
			return err
		}

		for i := range orders {
			order := &orders[i]
			order.DelegatedToId = &targetCashierId
			order.Notes = appendNoteTag(order.Notes, transferredTag)
			order.ClearedFromDelegated = false
			if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).
				Updates(map[string]interface{}{
					"delegated_to_id":        targetCashierId,
					"notes":                  order.Notes,
					"cleared_from_delegated": false,
				}).Error; err != nil {
				return err
			}

			audit := models.AuditLog{
				UserId: actor.ID,
				Action: "orders_transferred",
				Description: fmt.Sprintf("order %s transferred from cashier %d to cashier %d by %s",
					order.OrderNumber, actor.ID, targetCashierId, actor.Name),
			}
			if err := tx.Create(&audit).Error; err != nil {
				return err
			}
		}
		transferred = orders
		return nil
	})
	if err != nil {
		return nil, err
	}

	numbers := make([]string, len(transferred))
	ids := make([]int64, len(transferred))
	for i, o := range transferred {
		numbers[i] = o.OrderNumber
		ids[i] = o.ID
	}
	event := TransferEvent{
		OrderIds:      ids,
		OrderNumbers:  numbers,
		FromCashierId: actor.ID,
		ToCashierId:   targetCashierId,
		BranchId:      actor.BranchId,
		Timestamp:     time.Now().UTC(),
	}
	channels := TransferChannels(actor.ID, targetCashierId)
	event.Type = EventTransferredFromYou
	s.router.Publish(ctx, channels[0], event)
	event.Type = EventTransferredToYou
	s.router.Publish(ctx, channels[1], event)
	return transferred, nil
}
