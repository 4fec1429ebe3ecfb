package pos

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"branchpos/internal/database/models"
	"branchpos/internal/realtime"
)

// WaiterOrderTag marks orders submitted through the delegation flow. It lives
// in the notes field so the delegated-order queries and the clients can
// recognize these orders without a schema flag.
const WaiterOrderTag = "[WAITER ORDER]"

const (
	transferredTag = "[TRANSFERRED]"
	itemsAddedTag  = "[ITEMS ADDED]"
)

type OrderItemInput struct {
	MenuItemId int64
	Quantity   int32
	Notes      *string
}

type CreateOrderInput struct {
	ServiceChannel models.ServiceChannel
	TableId        *int64
	PaymentMethod  *models.PaymentMethod
	Notes          *string
	Items          []OrderItemInput

	// AppendToOrderId switches submission into append mode: the items are
	// added to the named order instead of opening a new one.
	AppendToOrderId *int64
}

type EditItemInput struct {
	// ItemId is nil for lines added by this edit.
	ItemId     *int64
	MenuItemId int64
	Quantity   int32
	Notes      *string
}

type EditOrderInput struct {
	Items         []EditItemInput
	Notes         *string
	ChangeSummary *string
}

// OrderService owns the order lifecycle: submission, payment, cancellation
// and the audited edit flow. All writes for one operation share a single
// transaction; events publish only after the transaction commits.
type OrderService struct {
	db          *gorm.DB
	counter     *CounterService
	assignments *AssignmentDirectory
	users       UserLookup
	tables      TableLookup
	menu        MenuLookup
	sessions    *SessionService
	router      realtime.Router
}

func NewOrderService(
	db *gorm.DB,
	counter *CounterService,
	assignments *AssignmentDirectory,
	directory *Directory,
	sessions *SessionService,
	router realtime.Router,
) *OrderService {
	return &OrderService{
		db:          db,
		counter:     counter,
		assignments: assignments,
		users:       directory,
		tables:      directory,
		menu:        directory,
		sessions:    sessions,
		router:      router,
	}
}

func generateOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD%s%04d", now.Format("20060102"), rand.Intn(10000))
}

func appendNoteTag(notes *string, tag string) *string {
	if notes == nil || *notes == "" {
		return &tag
	}
	combined := *notes + " " + tag
	return &combined
}

// EditAllowed is the edit gate: pending orders are always editable, paid
// orders only when the service channel keeps the order open after payment
// (delivery, take-away) or the payment was by card and can be amended.
func EditAllowed(status models.OrderStatus, channel models.ServiceChannel, payment *models.PaymentMethod) bool {
	if status == models.OrderPending {
		return true
	}
	if status == models.OrderPaid {
		if channel == models.ChannelDelivery || channel == models.ChannelTakeAway {
			return true
		}
		if payment != nil && *payment == models.PaymentCard {
			return true
		}
	}
	return false
}

func (s *OrderService) validateCreate(in CreateOrderInput) error {
	if !models.ValidServiceChannel(in.ServiceChannel) {
		return failf(FailValidation, "invalid service channel: %s", in.ServiceChannel)
	}
	if len(in.Items) == 0 {
		return failf(FailValidation, "order must contain at least one item")
	}
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return failf(FailValidation, "item quantity must be positive")
		}
	}
	return nil
}

// buildItems resolves menu references and prices the lines. Prices are read
// at submission time and frozen into the item rows.
func (s *OrderService) buildItems(ctx context.Context, branchId int64, inputs []OrderItemInput, asNew bool) ([]models.OrderItem, error) {
	items := make([]models.OrderItem, 0, len(inputs))
	for _, in := range inputs {
		ref, err := s.menu.MenuItemByID(ctx, in.MenuItemId)
		if err != nil {
			return nil, err
		}
		if ref == nil || ref.BranchId != branchId {
			return nil, failf(FailNotFound, "menu item %d not found", in.MenuItemId)
		}
		items = append(items, models.OrderItem{
			MenuItemId: in.MenuItemId,
			Quantity:   in.Quantity,
			UnitPrice:  ref.Price,
			LineTotal:  LineTotal(ref.Price, in.Quantity),
			Notes:      in.Notes,
			IsNew:      asNew,
		})
	}
	return items, nil
}

// CreateOrder submits a new order on behalf of the actor. Cashier submissions
// finalize immediately as paid; waiter submissions are routed to the waiter's
// assigned cashier and stay pending until that cashier settles them. A waiter
// with no assignment is rejected before any row is written.
func (s *OrderService) CreateOrder(ctx context.Context, actor ActorContext, in CreateOrderInput) (*models.Order, error) {
	if in.AppendToOrderId != nil {
		return s.appendToOrder(ctx, actor, *in.AppendToOrderId, in.Items)
	}
	if err := s.validateCreate(in); err != nil {
		return nil, err
	}

	var delegatedTo *int64
	notes := in.Notes

	switch {
	case actor.Role.CanDelegate():
		assignment, err := s.assignments.Get(ctx, actor.ID, actor.BranchId)
		if err != nil {
			return nil, err
		}
		if assignment == nil {
			return nil, failf(FailNoAssignment, "waiter %d has no cashier assignment", actor.ID)
		}
		delegatedTo = &assignment.CashierId
		notes = appendNoteTag(notes, WaiterOrderTag)
	case actor.Role.CanCheckout():
		if in.PaymentMethod == nil {
			return nil, failf(FailValidation, "payment method is required")
		}
	default:
		return nil, failf(FailForbidden, "role %s cannot submit orders", actor.Role)
	}

	if in.TableId != nil {
		table, err := s.tables.TableByID(ctx, *in.TableId)
		if err != nil {
			return nil, err
		}
		if table == nil || table.BranchId != actor.BranchId {
			return nil, failf(FailNotFound, "table %d not found", *in.TableId)
		}
	}

	items, err := s.buildItems(ctx, actor.BranchId, in.Items, false)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := models.Order{
		OrderNumber:    generateOrderNumber(now),
		BranchId:       actor.BranchId,
		TotalAmount:    MoneyString(OrderTotal(items)),
		Status:         models.OrderPending,
		ServiceChannel: in.ServiceChannel,
		PaymentMethod:  in.PaymentMethod,
		CreatedById:    actor.ID,
		DelegatedToId:  delegatedTo,
		TableId:        in.TableId,
		Notes:          notes,
	}
	if actor.Role.CanCheckout() {
		order.Status = models.OrderPaid
		order.PaidAt = &now
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		counter, err := s.counter.Next(tx, actor.BranchId)
		if err != nil {
			return err
		}
		order.OrderCounter = counter
		order.Items = items
		return tx.Create(&order).Error
	})
	if err != nil {
		return nil, err
	}

	if actor.Role.CanCheckout() {
		s.sessions.TrackOrderCreated(ctx, actor.ID, actor.BranchId)
	}

	s.publishCreated(ctx, actor, &order)
	return &order, nil
}

func (s *OrderService) publishCreated(ctx context.Context, actor ActorContext, order *models.Order) {
	if order.DelegatedToId != nil && actor.Role.CanDelegate() {
		event := orderEvent(EventNewWaiterRequest, order, actor.Name)
		for _, ch := range DelegatedOrderChannels(actor.ID, *order.DelegatedToId) {
			s.router.Publish(ctx, ch, event)
		}
	} else {
		event := orderEvent(EventNewOrder, order, actor.Name)
		for _, ch := range BranchWideChannels(order.BranchId) {
			s.router.Publish(ctx, ch, event)
		}
	}

	if order.TableId != nil && order.Status == models.OrderPending {
		s.publishTableStatus(ctx, order.BranchId, *order.TableId, true)
	}
}

func (s *OrderService) publishTableStatus(ctx context.Context, branchId, tableId int64, occupied bool) {
	event := TableStatusEvent{
		Type:      EventTableStatusUpdate,
		TableId:   tableId,
		BranchId:  branchId,
		Occupied:  occupied,
		Timestamp: time.Now().UTC(),
	}
	for _, ch := range BranchWideChannels(branchId) {
		s.router.Publish(ctx, ch, event)
	}
}

// appendToOrder adds items to an already open order. Only the creator or the
// delegate cashier may append, and the order must still be editable.
func (s *OrderService) appendToOrder(ctx context.Context, actor ActorContext, orderId int64, inputs []OrderItemInput) (*models.Order, error) {
	if len(inputs) == 0 {
		return nil, failf(FailValidation, "no items to add")
	}
	for _, item := range inputs {
		if item.Quantity <= 0 {
			return nil, failf(FailValidation, "item quantity must be positive")
		}
	}

	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Items").
			First(&order, orderId).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return failf(FailNotFound, "order %d not found", orderId)
		}
		if err != nil {
			return err
		}
		if !actor.SameBranch(order.BranchId) {
			return failf(FailForbidden, "order belongs to another branch")
		}
		if order.CreatedById != actor.ID && (order.DelegatedToId == nil || *order.DelegatedToId != actor.ID) {
			return failf(FailForbidden, "only the creator or delegate cashier may modify this order")
		}
		if !EditAllowed(order.Status, order.ServiceChannel, order.PaymentMethod) {
			return failf(FailEditLocked, "order %s can no longer be modified", order.OrderNumber)
		}

		added, err := s.buildItems(ctx, order.BranchId, inputs, true)
		if err != nil {
			return err
		}
		for i := range added {
			added[i].OrderId = order.ID
		}
		if err := tx.Create(&added).Error; err != nil {
			return err
		}
		order.Items = append(order.Items, added...)
		order.TotalAmount = MoneyString(OrderTotal(order.Items))
		order.Notes = appendNoteTag(order.Notes, itemsAddedTag)
		return tx.Model(&models.Order{}).Where("id = ?", order.ID).
			Updates(map[string]interface{}{
				"total_amount": order.TotalAmount,
				"notes":        order.Notes,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	if order.DelegatedToId != nil && actor.Role.CanDelegate() {
		event := orderEvent(EventWaiterOrderUpdated, &order, actor.Name)
		for _, ch := range DelegatedOrderChannels(order.CreatedById, *order.DelegatedToId) {
			s.router.Publish(ctx, ch, event)
		}
	} else {
		event := orderEvent(EventOrderUpdated, &order, actor.Name)
		for _, ch := range BranchWideChannels(order.BranchId) {
			s.router.Publish(ctx, ch, event)
		}
	}
	return &order, nil
}

// MarkPaid settles a pending order. Settling an order already in a terminal
// state is rejected without touching the row.
func (s *OrderService) MarkPaid(ctx context.Context, actor ActorContext, orderId int64, method models.PaymentMethod) (*models.Order, error) {
	if !actor.Role.CanManageOrders() {
		return nil, failf(FailForbidden, "role %s cannot settle orders", actor.Role)
	}

	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, orderId).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return failf(FailNotFound, "order %d not found", orderId)
		}
		if err != nil {
			return err
		}
		if !actor.SameBranch(order.BranchId) {
			return failf(FailForbidden, "order belongs to another branch")
		}
		if order.Status.Terminal() {
			return failf(FailAlreadyPaid, "order %s is already settled", order.OrderNumber)
		}

		now := time.Now().UTC()
		order.Status = models.OrderPaid
		order.PaidAt = &now
		order.PaymentMethod = &method
		return tx.Model(&models.Order{}).Where("id = ?", order.ID).
			Updates(map[string]interface{}{
				"status":         models.OrderPaid,
				"paid_at":        now,
				"payment_method": method,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	s.sessions.TrackOrderCreated(ctx, actor.ID, actor.BranchId)

	event := orderEvent(EventOrderPaid, &order, actor.Name)
	for _, ch := range BranchWideChannels(order.BranchId) {
		s.router.Publish(ctx, ch, event)
	}
	if order.TableId != nil {
		s.publishTableStatus(ctx, order.BranchId, *order.TableId, false)
	}
	return &order, nil
}

// Cancel voids a pending order. Terminal orders cannot be cancelled.
func (s *OrderService) Cancel(ctx context.Context, actor ActorContext, orderId int64) (*models.Order, error) {
	if !actor.Role.CanManageOrders() {
		return nil, failf(FailForbidden, "role %s cannot cancel orders", actor.Role)
	}

	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, orderId).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return failf(FailNotFound, "order %d not found", orderId)
		}
		if err != nil {
			return err
		}
		if !actor.SameBranch(order.BranchId) {
			return failf(FailForbidden, "order belongs to another branch")
		}
		if order.Status.Terminal() {
			return failf(FailOrderTerminal, "order %s is already %s", order.OrderNumber, order.Status)
		}

		order.Status = models.OrderCancelled
		return tx.Model(&models.Order{}).Where("id = ?", order.ID).
			Update("status", models.OrderCancelled).Error
	})
	if err != nil {
		return nil, err
	}

	event := orderEvent(EventOrderCancelled, &order, actor.Name)
	for _, ch := range BranchWideChannels(order.BranchId) {
		s.router.Publish(ctx, ch, event)
	}
	if order.TableId != nil {
		s.publishTableStatus(ctx, order.BranchId, *order.TableId, false)
	}
	return &order, nil
}

// EditOrder applies a full replacement item list to the order: lines carrying
// an item id are updated, lines without one are added as new, and existing
// lines absent from the input are flagged removed. Each successful edit bumps
// the edit counter and writes exactly one history row and one audit row, all
// in the order's transaction.
func (s *OrderService) EditOrder(ctx context.Context, actor ActorContext, orderId int64, in EditOrderInput) (*models.Order, error) {
	if len(in.Items) == 0 {
		return nil, failf(FailValidation, "edit must keep at least one item")
	}
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return nil, failf(FailValidation, "item quantity must be positive")
		}
	}

	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Items").
			First(&order, orderId).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return failf(FailNotFound, "order %d not found", orderId)
		}
		if err != nil {
			return err
		}
		if !actor.SameBranch(order.BranchId) {
			return failf(FailForbidden, "order belongs to another branch")
		}
		isCreator := order.CreatedById == actor.ID
		isDelegate := order.DelegatedToId != nil && *order.DelegatedToId == actor.ID
		if !isCreator && !isDelegate {
			return failf(FailForbidden, "only the creator or delegate cashier may edit this order")
		}
		if !EditAllowed(order.Status, order.ServiceChannel, order.PaymentMethod) {
			return failf(FailEditLocked, "order %s can no longer be edited", order.OrderNumber)
		}

		previousTotal := order.TotalAmount
		mentioned := make(map[int64]bool, len(in.Items))
		createdThisEdit := make(map[int64]bool)

		for _, line := range in.Items {
			if line.ItemId == nil {
				ref, err := s.menu.MenuItemByID(ctx, line.MenuItemId)
				if err != nil {
					return err
				}
				if ref == nil || ref.BranchId != order.BranchId {
					return failf(FailNotFound, "menu item %d not found", line.MenuItemId)
				}
				added := models.OrderItem{
					OrderId:    order.ID,
					MenuItemId: line.MenuItemId,
					Quantity:   line.Quantity,
					UnitPrice:  ref.Price,
					LineTotal:  LineTotal(ref.Price, line.Quantity),
					Notes:      line.Notes,
					IsNew:      true,
				}
				if err := tx.Create(&added).Error; err != nil {
					return err
				}
				createdThisEdit[added.ID] = true
				order.Items = append(order.Items, added)
				continue
			}

			mentioned[*line.ItemId] = true
			found := false
			for i := range order.Items {
				if order.Items[i].ID != *line.ItemId {
					continue
				}
				found = true
				item := &order.Items[i]
				item.Quantity = line.Quantity
				item.Notes = line.Notes
				item.LineTotal = LineTotal(item.UnitPrice, line.Quantity)
				item.IsRemoved = false
				if err := tx.Model(&models.OrderItem{}).Where("id = ?", item.ID).
					Updates(map[string]interface{}{
						"quantity":   item.Quantity,
						"notes":      item.Notes,
						"line_total": item.LineTotal,
						"is_removed": false,
					}).Error; err != nil {
					return err
				}
			}
			if !found {
				return failf(FailNotFound, "order item %d not found", *line.ItemId)
			}
		}

		// Lines added by earlier edits or appends are ordinary lines now;
		// only lines created in this pass are exempt from removal.
		for i := range order.Items {
			item := &order.Items[i]
			if createdThisEdit[item.ID] || mentioned[item.ID] || item.IsRemoved {
				continue
			}
			item.IsRemoved = true
			if err := tx.Model(&models.OrderItem{}).Where("id = ?", item.ID).
				Update("is_removed", true).Error; err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		order.TotalAmount = MoneyString(OrderTotal(order.Items))
		order.EditCount++
		order.LastEditedById = &actor.ID
		order.LastEditedAt = &now
		if in.Notes != nil {
			order.Notes = in.Notes
		}

		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).
			Updates(map[string]interface{}{
				"total_amount":      order.TotalAmount,
				"edit_count":        order.EditCount,
				"last_edited_by_id": actor.ID,
				"last_edited_at":    now,
				"notes":             order.Notes,
			}).Error; err != nil {
			return err
		}

		history := models.OrderEditHistory{
			OrderId:       order.ID,
			EditedById:    actor.ID,
			EditedAt:      now,
			PreviousTotal: previousTotal,
			NewTotal:      order.TotalAmount,
			ChangeSummary: in.ChangeSummary,
		}
		if err := tx.Create(&history).Error; err != nil {
			return err
		}

		audit := models.AuditLog{
			UserId: actor.ID,
			Action: "order_edited",
			Description: fmt.Sprintf("order %s edited by %s, total %s -> %s",
				order.OrderNumber, actor.Name, previousTotal, order.TotalAmount),
		}
		return tx.Create(&audit).Error
	})
	if err != nil {
		return nil, err
	}

	if actor.Role.CanDelegate() && order.DelegatedToId != nil {
		event := orderEvent(EventWaiterOrderUpdated, &order, actor.Name)
		for _, ch := range DelegatedOrderChannels(order.CreatedById, *order.DelegatedToId) {
			s.router.Publish(ctx, ch, event)
		}
	} else {
		event := orderEvent(EventOrderEditedByCashier, &order, actor.Name)
		for _, ch := range BranchWideChannels(order.BranchId) {
			s.router.Publish(ctx, ch, event)
		}
	}
	return &order, nil
}

// GetOrder loads one order with its items.
func (s *OrderService) GetOrder(ctx context.Context, actor ActorContext, orderId int64) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Preload("Items").First(&order, orderId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, failf(FailNotFound, "order %d not found", orderId)
	}
	if err != nil {
		return nil, err
	}
	if !actor.SameBranch(order.BranchId) {
		return nil, failf(FailForbidden, "order belongs to another branch")
	}
	return &order, nil
}

// UnpaidDelegated lists the pending waiter-submitted orders routed to the
// cashier that have not been cleared from the delegated view.
func (s *OrderService) UnpaidDelegated(ctx context.Context, cashierId int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Preload("Items").
		Where("delegated_to_id = ? AND status = ? AND cleared_from_delegated = ? AND notes LIKE ?",
			cashierId, models.OrderPending, false, "%"+WaiterOrderTag+"%").
		Order("created_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ClearDelegated hides the cashier's current delegated backlog from the
// delegated view without changing order state. Returns the number of orders
// cleared.
func (s *OrderService) ClearDelegated(ctx context.Context, actor ActorContext) (int64, error) {
	if !actor.Role.CanCheckout() {
		return 0, failf(FailForbidden, "role %s has no delegated view", actor.Role)
	}
	res := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("delegated_to_id = ? AND status = ? AND cleared_from_delegated = ? AND notes LIKE ?",
			actor.ID, models.OrderPending, false, "%"+WaiterOrderTag+"%").
		Update("cleared_from_delegated", true)
	if res.Error != nil {
		return 0, res.Error
	}

	if res.RowsAffected > 0 {
		s.router.Publish(ctx, realtime.CashierChannel(actor.ID), map[string]interface{}{
			"type":       EventWaiterRequestsCleared,
			"cashier_id": actor.ID,
			"count":      res.RowsAffected,
			"timestamp":  time.Now().UTC(),
		})
	} else {
		log.Printf("pos: clear delegated for cashier %d matched no orders", actor.ID)
	}
	return res.RowsAffected, nil
}
