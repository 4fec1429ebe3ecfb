package pos

import (
	"time"

	"branchpos/internal/database/models"
	"branchpos/internal/realtime"
)

// Event type discriminators carried in every published payload.
const (
	EventNewOrder              = "new_order"
	EventOrderUpdated          = "order_updated"
	EventNewWaiterRequest      = "new_waiter_request"
	EventWaiterOrderUpdated    = "waiter_order_updated"
	EventOrderPaid             = "order_paid"
	EventOrderCancelled        = "order_cancelled"
	EventOrderEditedByCashier  = "order_edited_by_cashier"
	EventTableStatusUpdate     = "table_status_update"
	EventTransferredToYou      = "orders_transferred_to_you"
	EventTransferredFromYou    = "orders_transferred_from_you"
	EventWaiterRequestsCleared = "waiter_requests_cleared"
)

// OrderEvent is the payload for order lifecycle notifications.
type OrderEvent struct {
	Type          string             `json:"type"`
	OrderId       int64              `json:"order_id"`
	OrderNumber   string             `json:"order_number"`
	OrderCounter  int64              `json:"order_counter"`
	BranchId      int64              `json:"branch_id"`
	Status        models.OrderStatus `json:"status"`
	TotalAmount   string             `json:"total_amount"`
	CreatedById   int64              `json:"created_by_id"`
	CreatedByName string             `json:"created_by_name,omitempty"`
	DelegatedToId *int64             `json:"delegated_to_id,omitempty"`
	TableId       *int64             `json:"table_id,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
}

// TableStatusEvent announces a table becoming occupied or free.
type TableStatusEvent struct {
	Type      string    `json:"type"`
	TableId   int64     `json:"table_id"`
	BranchId  int64     `json:"branch_id"`
	Occupied  bool      `json:"occupied"`
	Timestamp time.Time `json:"timestamp"`
}

// TransferEvent announces a completed delegation hand-off between cashiers.
type TransferEvent struct {
	Type          string    `json:"type"`
	OrderIds      []int64   `json:"order_ids"`
	OrderNumbers  []string  `json:"order_numbers"`
	FromCashierId int64     `json:"from_cashier_id"`
	ToCashierId   int64     `json:"to_cashier_id"`
	BranchId      int64     `json:"branch_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// DelegatedOrderChannels selects the audience for events on waiter-created
// orders that are still in delegated flow: only the submitting waiter and
// the delegate cashier hear about them, never the whole branch.
func DelegatedOrderChannels(waiterId, delegateCashierId int64) []string {
	return []string{
		realtime.WaiterChannel(waiterId),
		realtime.CashierChannel(delegateCashierId),
	}
}

// BranchWideChannels selects the branch channel. Cashier-created orders,
// payments, cancellations, cashier edits and table status changes are
// branch-visible regardless of who originated the order.
func BranchWideChannels(branchId int64) []string {
	return []string{realtime.BranchChannel(branchId)}
}

// TransferChannels selects the two cashier channels involved in a hand-off,
// source first.
func TransferChannels(fromCashierId, toCashierId int64) []string {
	return []string{
		realtime.CashierChannel(fromCashierId),
		realtime.CashierChannel(toCashierId),
	}
}

func orderEvent(eventType string, order *models.Order, actorName string) OrderEvent {
	return OrderEvent{
		Type:          eventType,
		OrderId:       order.ID,
		OrderNumber:   order.OrderNumber,
		OrderCounter:  order.OrderCounter,
		BranchId:      order.BranchId,
		Status:        order.Status,
		TotalAmount:   order.TotalAmount,
		CreatedById:   order.CreatedById,
		CreatedByName: actorName,
		DelegatedToId: order.DelegatedToId,
		TableId:       order.TableId,
		Timestamp:     time.Now().UTC(),
	}
}
