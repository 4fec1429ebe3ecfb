package realtime

import (
	"context"
	"fmt"
)

// Channel names follow the subscription convention the client terminals use:
// every terminal joins its branch channel, cashier terminals additionally
// join their cashier channel, waiter terminals their waiter channel.
func BranchChannel(branchId int64) string   { return fmt.Sprintf("branch:%d", branchId) }
func CashierChannel(cashierId int64) string { return fmt.Sprintf("cashier:%d", cashierId) }
func WaiterChannel(waiterId int64) string   { return fmt.Sprintf("waiter:%d", waiterId) }

// Router fans an event out to one named channel. Implementations are fire and
// forget: a delivery failure must never surface into the calling operation.
type Router interface {
	Publish(ctx context.Context, channel string, event interface{})
}
