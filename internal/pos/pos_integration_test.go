package pos_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	postgresdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"branchpos/internal/database"
	"branchpos/internal/database/models"
	"branchpos/internal/pos"
)

// captureRouter records published events instead of pushing them to redis.
type captureRouter struct {
	mu     sync.Mutex
	events map[string][]interface{}
}

func newCaptureRouter() *captureRouter {
	return &captureRouter{events: make(map[string][]interface{})}
}

func (r *captureRouter) Publish(_ context.Context, channel string, event interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[channel] = append(r.events[channel], event)
}

func (r *captureRouter) count(channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events[channel])
}

func (r *captureRouter) eventsOn(channel string) []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]interface{}(nil), r.events[channel]...)
}

func (r *captureRouter) channels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for ch := range r.events {
		out = append(out, ch)
	}
	return out
}

// POSIntegrationTestSuite exercises the order lifecycle against a real
// PostgreSQL instance.
type POSIntegrationTestSuite struct {
	suite.Suite
	container *postgres.PostgresContainer
	db        *gorm.DB

	router      *captureRouter
	directory   *pos.Directory
	counters    *pos.CounterService
	assignments *pos.AssignmentDirectory
	sessions    *pos.SessionService
	pins        *pos.PinService
	orders      *pos.OrderService
	transfers   *pos.TransferService

	branch  models.Branch
	cashier models.User
	waiter  models.User
	burger  models.MenuItem
	coffee  models.MenuItem
	table   models.Table
}

func (s *POSIntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := gorm.Open(postgresdriver.Open(connStr), &gorm.Config{})
	s.Require().NoError(err)
	s.db = db

	s.Require().NoError(database.Migrate(db))
}

func (s *POSIntegrationTestSuite) SetupTest() {
	s.Require().NoError(s.db.Exec(
		`TRUNCATE TABLE order_items, order_edit_histories, orders, waiter_assignments,
		 cashier_sessions, order_counters, cashier_pins, admin_pins, audit_logs,
		 menu_items, tables, users, branches RESTART IDENTITY CASCADE`).Error)

	s.router = newCaptureRouter()
	s.directory = pos.NewDirectory(s.db)
	s.counters = pos.NewCounterService(s.db)
	s.assignments = pos.NewAssignmentDirectory(s.db)
	s.sessions = pos.NewSessionService(s.db)
	s.pins = pos.NewPinService(s.db)
	s.orders = pos.NewOrderService(s.db, s.counters, s.assignments, s.directory, s.sessions, s.router)
	s.transfers = pos.NewTransferService(s.db, s.directory, s.router)

	s.branch = models.Branch{Name: "Downtown", Code: "DT1", IsActive: true}
	s.Require().NoError(s.db.Create(&s.branch).Error)

	s.cashier = s.createUser("kasia", models.RoleCashier)
	s.waiter = s.createUser("wojtek", models.RoleWaiter)

	s.burger = models.MenuItem{Name: "Burger", Price: "12.50", BranchId: s.branch.ID, IsActive: true}
	s.Require().NoError(s.db.Create(&s.burger).Error)
	s.coffee = models.MenuItem{Name: "Coffee", Price: "3.00", BranchId: s.branch.ID, IsActive: true}
	s.Require().NoError(s.db.Create(&s.coffee).Error)

	s.table = models.Table{TableNumber: "T1", BranchId: s.branch.ID, IsActive: true}
	s.Require().NoError(s.db.Create(&s.table).Error)
}

func (s *POSIntegrationTestSuite) TearDownSuite() {
	if s.container != nil {
		s.Require().NoError(s.container.Terminate(context.Background()))
	}
}

func (s *POSIntegrationTestSuite) createUser(name string, role models.Role) models.User {
	user := models.User{
		Username:  name,
		Firstname: name,
		Lastname:  "Test",
		Role:      role,
		BranchId:  s.branch.ID,
		IsActive:  true,
	}
	s.Require().NoError(s.db.Create(&user).Error)
	return user
}

func actorFor(u models.User) pos.ActorContext {
	return pos.ActorContext{ID: u.ID, Name: u.FullName(), Role: u.Role, BranchId: u.BranchId}
}

func (s *POSIntegrationTestSuite) assignWaiter() {
	_, err := s.assignments.Set(context.Background(), s.waiter.ID, s.branch.ID, s.cashier.ID, nil)
	s.Require().NoError(err)
}

func (s *POSIntegrationTestSuite) cashierOrderInput() pos.CreateOrderInput {
	method := models.PaymentCash
	return pos.CreateOrderInput{
		ServiceChannel: models.ChannelOnTable,
		PaymentMethod:  &method,
		Items: []pos.OrderItemInput{
			{MenuItemId: s.burger.ID, Quantity: 2},
		},
	}
}

func (s *POSIntegrationTestSuite) waiterOrderInput() pos.CreateOrderInput {
	return pos.CreateOrderInput{
		ServiceChannel: models.ChannelOnTable,
		Items: []pos.OrderItemInput{
			{MenuItemId: s.burger.ID, Quantity: 1},
			{MenuItemId: s.coffee.ID, Quantity: 2},
		},
	}
}

// --- Counter ---

func (s *POSIntegrationTestSuite) TestCounterNext_Sequential() {
	s.Require().NoError(s.db.Create(&models.OrderCounter{
		BranchId: s.branch.ID, CurrentCounter: 5,
	}).Error)

	var first, second int64
	s.Require().NoError(s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		first, err = s.counters.Next(tx, s.branch.ID)
		return err
	}))
	s.Require().NoError(s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		second, err = s.counters.Next(tx, s.branch.ID)
		return err
	}))

	s.Equal(int64(6), first)
	s.Equal(int64(7), second)
}

func (s *POSIntegrationTestSuite) TestCounterNext_ConcurrentNeverDuplicates() {
	s.Require().NoError(s.db.Create(&models.OrderCounter{
		BranchId: s.branch.ID, CurrentCounter: 5,
	}).Error)

	results := make(chan int64, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.db.Transaction(func(tx *gorm.DB) error {
				v, err := s.counters.Next(tx, s.branch.ID)
				if err != nil {
					return err
				}
				results <- v
				return nil
			})
			s.NoError(err)
		}()
	}
	wg.Wait()
	close(results)

	seen := map[int64]bool{}
	for v := range results {
		seen[v] = true
	}
	s.Equal(map[int64]bool{6: true, 7: true}, seen)
}

func (s *POSIntegrationTestSuite) TestCounterReset() {
	s.Require().NoError(s.db.Create(&models.OrderCounter{
		BranchId: s.branch.ID, CurrentCounter: 42,
	}).Error)

	s.Require().NoError(s.counters.Reset(context.Background(), s.branch.ID))

	var next int64
	s.Require().NoError(s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		next, err = s.counters.Next(tx, s.branch.ID)
		return err
	}))
	s.Equal(int64(1), next)

	var counter models.OrderCounter
	s.Require().NoError(s.db.Where("branch_id = ?", s.branch.ID).First(&counter).Error)
	s.NotNil(counter.LastResetDate)
}

// --- Order submission ---

func (s *POSIntegrationTestSuite) TestCreateOrder_WaiterWithoutAssignment() {
	_, err := s.orders.CreateOrder(context.Background(), actorFor(s.waiter), s.waiterOrderInput())
	s.Require().Error(err)
	s.True(pos.IsKind(err, pos.FailNoAssignment))

	var orderCount int64
	s.Require().NoError(s.db.Model(&models.Order{}).Count(&orderCount).Error)
	s.Zero(orderCount)

	var counterCount int64
	s.Require().NoError(s.db.Model(&models.OrderCounter{}).Count(&counterCount).Error)
	s.Zero(counterCount)

	s.Empty(s.router.channels())
}

func (s *POSIntegrationTestSuite) TestCreateOrder_WaiterDelegated() {
	s.assignWaiter()

	order, err := s.orders.CreateOrder(context.Background(), actorFor(s.waiter), s.waiterOrderInput())
	s.Require().NoError(err)

	s.Equal(models.OrderPending, order.Status)
	s.Require().NotNil(order.DelegatedToId)
	s.Equal(s.cashier.ID, *order.DelegatedToId)
	s.Require().NotNil(order.Notes)
	s.Contains(*order.Notes, pos.WaiterOrderTag)
	s.Equal(int64(1), order.OrderCounter)
	s.Equal("18.50", order.TotalAmount)
	s.Nil(order.PaidAt)

	// Delegated submissions stay off the branch channel.
	s.Equal(1, s.router.count("waiter:"+itoa(s.waiter.ID)))
	s.Equal(1, s.router.count("cashier:"+itoa(s.cashier.ID)))
	s.Zero(s.router.count("branch:" + itoa(s.branch.ID)))
}

func (s *POSIntegrationTestSuite) TestCreateOrder_CashierPaidImmediately() {
	order, err := s.orders.CreateOrder(context.Background(), actorFor(s.cashier), s.cashierOrderInput())
	s.Require().NoError(err)

	s.Equal(models.OrderPaid, order.Status)
	s.NotNil(order.PaidAt)
	s.Nil(order.DelegatedToId)
	s.Equal("25.00", order.TotalAmount)
	s.Equal(1, s.router.count("branch:"+itoa(s.branch.ID)))

	var session models.CashierSession
	s.Require().NoError(s.db.Where("cashier_id = ?", s.cashier.ID).First(&session).Error)
	s.Equal(int64(1), session.CurrentOrderCount)
}

func (s *POSIntegrationTestSuite) TestCreateOrder_SequentialCounters() {
	first, err := s.orders.CreateOrder(context.Background(), actorFor(s.cashier), s.cashierOrderInput())
	s.Require().NoError(err)
	second, err := s.orders.CreateOrder(context.Background(), actorFor(s.cashier), s.cashierOrderInput())
	s.Require().NoError(err)

	s.Equal(int64(1), first.OrderCounter)
	s.Equal(int64(2), second.OrderCounter)
	s.NotEqual(first.OrderNumber, second.OrderNumber)
}

func (s *POSIntegrationTestSuite) TestAppendToOrder() {
	s.assignWaiter()
	order, err := s.orders.CreateOrder(context.Background(), actorFor(s.waiter), s.waiterOrderInput())
	s.Require().NoError(err)

	updated, err := s.orders.CreateOrder(context.Background(), actorFor(s.waiter), pos.CreateOrderInput{
		AppendToOrderId: &order.ID,
		Items: []pos.OrderItemInput{
			{MenuItemId: s.coffee.ID, Quantity: 1},
		},
	})
	s.Require().NoError(err)

	s.Equal("21.50", updated.TotalAmount)
	s.Contains(*updated.Notes, "[ITEMS ADDED]")
	s.Len(updated.Items, 3)

	var newCount int64
	s.Require().NoError(s.db.Model(&models.OrderItem{}).
		Where("order_id = ? AND is_new = ?", order.ID, true).Count(&newCount).Error)
	s.Equal(int64(1), newCount)
}

func (s *POSIntegrationTestSuite) TestCreateOrder_TableStatusBranchWide() {
	s.assignWaiter()
	input := s.waiterOrderInput()
	input.TableId = &s.table.ID

	order, err := s.orders.CreateOrder(context.Background(), actorFor(s.waiter), input)
	s.Require().NoError(err)

	// The order itself stays off the branch channel, the table status does not.
	s.Equal(1, s.router.count("branch:"+itoa(s.branch.ID)))

	_, err = s.orders.MarkPaid(context.Background(), actorFor(s.cashier), order.ID, models.PaymentCash)
	s.Require().NoError(err)

	// order_paid plus the table becoming free.
	s.Equal(3, s.router.count("branch:"+itoa(s.branch.ID)))
}

// --- Payment and cancellation ---

func (s *POSIntegrationTestSuite) TestMarkPaid_DelegatedOrder() {
	s.assignWaiter()
	order, err := s.orders.CreateOrder(context.Background(), actorFor(s.waiter), s.waiterOrderInput())
	s.Require().NoError(err)

	paid, err := s.orders.MarkPaid(context.Background(), actorFor(s.cashier), order.ID, models.PaymentCash)
	s.Require().NoError(err)

	s.Equal(models.OrderPaid, paid.Status)
	s.NotNil(paid.PaidAt)
	s.Require().NotNil(paid.PaymentMethod)
	s.Equal(models.PaymentCash, *paid.PaymentMethod)

	// Settlement is branch-visible even for delegated orders.
	s.GreaterOrEqual(s.router.count("branch:"+itoa(s.branch.ID)), 1)
}

func (s *POSIntegrationTestSuite) TestMarkPaid_TerminalOrderRejected() {
	order, err := s.orders.CreateOrder(context.Background(), actorFor(s.cashier), s.cashierOrderInput())
	s.Require().NoError(err)
	firstPaidAt := *order.PaidAt

	_, err = s.orders.MarkPaid(context.Background(), actorFor(s.cashier), order.ID, models.PaymentCard)
	s.Require().Error(err)
	s.True(pos.IsKind(err, pos.FailAlreadyPaid))

	var reloaded models.Order
	s.Require().NoError(s.db.First(&reloaded, order.ID).Error)
	s.Require().NotNil(reloaded.PaidAt)
	s.WithinDuration(firstPaidAt, *reloaded.PaidAt, time.Second)
	s.Require().NotNil(reloaded.PaymentMethod)
	s.Equal(models.PaymentCash, *reloaded.PaymentMethod)
}

func (s *POSIntegrationTestSuite) TestCancel_PendingOrder() {
	s.assignWaiter()
	order, err := s.orders.CreateOrder(context.Background(), actorFor(s.waiter), s.waiterOrderInput())
	s.Require().NoError(err)

	cancelled, err := s.orders.Cancel(context.Background(), actorFor(s.cashier), order.ID)
	s.Require().NoError(err)
	s.Equal(models.OrderCancelled, cancelled.Status)

	_, err = s.orders.Cancel(context.Background(), actorFor(s.cashier), order.ID)
	s.Require().Error(err)
	s.True(pos.IsKind(err, pos.FailOrderTerminal))
}

// --- Edit trail ---

func (s *POSIntegrationTestSuite) TestEditOrder_TrailAndTotals() {
	s.assignWaiter()
	order, err := s.orders.CreateOrder(context.Background(), actorFor(s.waiter), s.waiterOrderInput())
	s.Require().NoError(err)

	burgerLine := order.Items[0]
	summary := "coffee swapped for extra burger"
	edited, err := s.orders.EditOrder(context.Background(), actorFor(s.cashier), order.ID, pos.EditOrderInput{
		Items: []pos.EditItemInput{
			{ItemId: &burgerLine.ID, MenuItemId: s.burger.ID, Quantity: 3},
		},
		ChangeSummary: &summary,
	})
	s.Require().NoError(err)

	s.Equal(int32(1), edited.EditCount)
	s.Equal("37.50", edited.TotalAmount)

	var removed int64
	s.Require().NoError(s.db.Model(&models.OrderItem{}).
		Where("order_id = ? AND is_removed = ?", order.ID, true).Count(&removed).Error)
	s.Equal(int64(1), removed)

	var historyCount int64
	s.Require().NoError(s.db.Model(&models.OrderEditHistory{}).
		Where("order_id = ?", order.ID).Count(&historyCount).Error)
	s.Equal(int64(1), historyCount)

	var history models.OrderEditHistory
	s.Require().NoError(s.db.Where("order_id = ?", order.ID).First(&history).Error)
	s.Equal("18.50", history.PreviousTotal)
	s.Equal("37.50", history.NewTotal)

	var auditCount int64
	s.Require().NoError(s.db.Model(&models.AuditLog{}).
		Where("action = ?", "order_edited").Count(&auditCount).Error)
	s.Equal(int64(1), auditCount)
}

func (s *POSIntegrationTestSuite) TestEditOrder_EditCountMatchesHistory() {
	s.assignWaiter()
	order, err := s.orders.CreateOrder(context.Background(), actorFor(s.waiter), s.waiterOrderInput())
	s.Require().NoError(err)

	line := order.Items[0]
	for q := int32(2); q <= 4; q++ {
		_, err := s.orders.EditOrder(context.Background(), actorFor(s.cashier), order.ID, pos.EditOrderInput{
			Items: []pos.EditItemInput{
				{ItemId: &line.ID, MenuItemId: s.burger.ID, Quantity: q},
			},
		})
		s.Require().NoError(err)
	}

	var reloaded models.Order
	s.Require().NoError(s.db.First(&reloaded, order.ID).Error)

	var historyCount int64
	s.Require().NoError(s.db.Model(&models.OrderEditHistory{}).
		Where("order_id = ?", order.ID).Count(&historyCount).Error)
	s.Equal(int64(reloaded.EditCount), historyCount)
}

func (s *POSIntegrationTestSuite) TestEditOrder_RemovesLineAddedByEarlierEdit() {
	s.assignWaiter()
	order, err := s.orders.CreateOrder(context.Background(), actorFor(s.waiter), pos.CreateOrderInput{
		ServiceChannel: models.ChannelOnTable,
		Items: []pos.OrderItemInput{
			{MenuItemId: s.burger.ID, Quantity: 1},
		},
	})
	s.Require().NoError(err)
	burgerLine := order.Items[0]

	// Edit 1 keeps the burger and adds a coffee line.
	edited, err := s.orders.EditOrder(context.Background(), actorFor(s.cashier), order.ID, pos.EditOrderInput{
		Items: []pos.EditItemInput{
			{ItemId: &burgerLine.ID, MenuItemId: s.burger.ID, Quantity: 1},
			{MenuItemId: s.coffee.ID, Quantity: 2},
		},
	})
	s.Require().NoError(err)
	s.Equal("18.50", edited.TotalAmount)

	// Edit 2 omits the coffee line added by edit 1; it must be flagged
	// removed and drop out of the total like any other line.
	edited, err = s.orders.EditOrder(context.Background(), actorFor(s.cashier), order.ID, pos.EditOrderInput{
		Items: []pos.EditItemInput{
			{ItemId: &burgerLine.ID, MenuItemId: s.burger.ID, Quantity: 1},
		},
	})
	s.Require().NoError(err)
	s.Equal("12.50", edited.TotalAmount)

	var removed int64
	s.Require().NoError(s.db.Model(&models.OrderItem{}).
		Where("order_id = ? AND is_removed = ?", order.ID, true).Count(&removed).Error)
	s.Equal(int64(1), removed)

	var coffeeLine models.OrderItem
	s.Require().NoError(s.db.Where("order_id = ? AND menu_item_id = ?",
		order.ID, s.coffee.ID).First(&coffeeLine).Error)
	s.True(coffeeLine.IsRemoved)
}

func (s *POSIntegrationTestSuite) TestEditOrder_RemovesAppendedLine() {
	s.assignWaiter()
	order, err := s.orders.CreateOrder(context.Background(), actorFor(s.waiter), pos.CreateOrderInput{
		ServiceChannel: models.ChannelOnTable,
		Items: []pos.OrderItemInput{
			{MenuItemId: s.burger.ID, Quantity: 1},
		},
	})
	s.Require().NoError(err)
	burgerLine := order.Items[0]

	_, err = s.orders.CreateOrder(context.Background(), actorFor(s.waiter), pos.CreateOrderInput{
		AppendToOrderId: &order.ID,
		Items: []pos.OrderItemInput{
			{MenuItemId: s.coffee.ID, Quantity: 1},
		},
	})
	s.Require().NoError(err)

	edited, err := s.orders.EditOrder(context.Background(), actorFor(s.cashier), order.ID, pos.EditOrderInput{
		Items: []pos.EditItemInput{
			{ItemId: &burgerLine.ID, MenuItemId: s.burger.ID, Quantity: 1},
		},
	})
	s.Require().NoError(err)
	s.Equal("12.50", edited.TotalAmount)

	var removed int64
	s.Require().NoError(s.db.Model(&models.OrderItem{}).
		Where("order_id = ? AND is_removed = ?", order.ID, true).Count(&removed).Error)
	s.Equal(int64(1), removed)
}

func (s *POSIntegrationTestSuite) TestEditOrder_StrangerForbidden() {
	s.assignWaiter()
	order, err := s.orders.CreateOrder(context.Background(), actorFor(s.waiter), s.waiterOrderInput())
	s.Require().NoError(err)

	other := s.createUser("other", models.RoleCashier)
	line := order.Items[0]
	_, err = s.orders.EditOrder(context.Background(), actorFor(other), order.ID, pos.EditOrderInput{
		Items: []pos.EditItemInput{
			{ItemId: &line.ID, MenuItemId: s.burger.ID, Quantity: 2},
		},
	})
	s.Require().Error(err)
	s.True(pos.IsKind(err, pos.FailForbidden))
}

func (s *POSIntegrationTestSuite) TestEditOrder_PaidOnTableCashLocked() {
	order, err := s.orders.CreateOrder(context.Background(), actorFor(s.cashier), s.cashierOrderInput())
	s.Require().NoError(err)

	line := order.Items[0]
	_, err = s.orders.EditOrder(context.Background(), actorFor(s.cashier), order.ID, pos.EditOrderInput{
		Items: []pos.EditItemInput{
			{ItemId: &line.ID, MenuItemId: s.burger.ID, Quantity: 1},
		},
	})
	s.Require().Error(err)
	s.True(pos.IsKind(err, pos.FailEditLocked))
}

func (s *POSIntegrationTestSuite) TestEditOrder_PaidDeliveryStillEditable() {
	method := models.PaymentCash
	order, err := s.orders.CreateOrder(context.Background(), actorFor(s.cashier), pos.CreateOrderInput{
		ServiceChannel: models.ChannelDelivery,
		PaymentMethod:  &method,
		Items: []pos.OrderItemInput{
			{MenuItemId: s.burger.ID, Quantity: 1},
		},
	})
	s.Require().NoError(err)

	line := order.Items[0]
	edited, err := s.orders.EditOrder(context.Background(), actorFor(s.cashier), order.ID, pos.EditOrderInput{
		Items: []pos.EditItemInput{
			{ItemId: &line.ID, MenuItemId: s.burger.ID, Quantity: 2},
		},
	})
	s.Require().NoError(err)
	s.Equal("25.00", edited.TotalAmount)
}

// --- Delegated view ---

func (s *POSIntegrationTestSuite) TestUnpaidDelegatedAndClear() {
	s.assignWaiter()
	first, err := s.orders.CreateOrder(context.Background(), actorFor(s.waiter), s.waiterOrderInput())
	s.Require().NoError(err)
	_, err = s.orders.CreateOrder(context.Background(), actorFor(s.waiter), s.waiterOrderInput())
	s.Require().NoError(err)

	pending, err := s.orders.UnpaidDelegated(context.Background(), s.cashier.ID)
	s.Require().NoError(err)
	s.Len(pending, 2)

	cleared, err := s.orders.ClearDelegated(context.Background(), actorFor(s.cashier))
	s.Require().NoError(err)
	s.Equal(int64(2), cleared)

	pending, err = s.orders.UnpaidDelegated(context.Background(), s.cashier.ID)
	s.Require().NoError(err)
	s.Empty(pending)

	// Clearing hides the view but does not settle anything.
	var reloaded models.Order
	s.Require().NoError(s.db.First(&reloaded, first.ID).Error)
	s.Equal(models.OrderPending, reloaded.Status)
	s.True(reloaded.ClearedFromDelegated)
}

// --- Session and reporting gate ---

func (s *POSIntegrationTestSuite) TestGetOrCreateToday_ConcurrentFirstTouch() {
	const callers = 8
	results := make([]*models.CashierSession, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.sessions.GetOrCreateToday(
				context.Background(), s.cashier.ID, s.branch.ID)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		s.Require().NoError(errs[i])
		s.Require().NotNil(results[i])
		s.Equal(results[0].ID, results[i].ID)
	}

	var rows int64
	s.Require().NoError(s.db.Model(&models.CashierSession{}).
		Where("cashier_id = ?", s.cashier.ID).Count(&rows).Error)
	s.Equal(int64(1), rows)
}

func (s *POSIntegrationTestSuite) TestUpdateOrderCount() {
	session, err := s.sessions.GetOrCreateToday(
		context.Background(), s.cashier.ID, s.branch.ID)
	s.Require().NoError(err)
	s.Zero(session.CurrentOrderCount)

	before := session.LastActivity
	time.Sleep(10 * time.Millisecond)
	s.Require().NoError(s.sessions.UpdateOrderCount(context.Background(), session.ID, 7))

	var reloaded models.CashierSession
	s.Require().NoError(s.db.First(&reloaded, session.ID).Error)
	s.Equal(int64(7), reloaded.CurrentOrderCount)
	s.True(reloaded.LastActivity.After(before))

	err = s.sessions.UpdateOrderCount(context.Background(), 99999, 1)
	s.Require().Error(err)
	s.True(pos.IsKind(err, pos.FailNotFound))
}

func (s *POSIntegrationTestSuite) TestMarkReportProduced_Idempotent() {
	actor := actorFor(s.cashier)

	first, err := s.sessions.MarkReportProduced(context.Background(), actor)
	s.Require().NoError(err)
	s.Require().NotNil(first.ReportProducedAt)
	firstAt := *first.ReportProducedAt

	time.Sleep(10 * time.Millisecond)
	second, err := s.sessions.MarkReportProduced(context.Background(), actor)
	s.Require().NoError(err)
	s.Require().NotNil(second.ReportProducedAt)
	s.WithinDuration(firstAt, *second.ReportProducedAt, time.Millisecond)

	var auditCount int64
	s.Require().NoError(s.db.Model(&models.AuditLog{}).
		Where("action = ?", "report_produced").Count(&auditCount).Error)
	s.Equal(int64(1), auditCount)
}

func (s *POSIntegrationTestSuite) TestCheckLogout_CleanDay() {
	decision, err := s.sessions.CheckLogout(context.Background(), actorFor(s.cashier))
	s.Require().NoError(err)
	s.True(decision.Allowed)
	s.Equal(pos.LogoutReasonNone, decision.Reason)
}

func (s *POSIntegrationTestSuite) TestCheckLogout_ActivityRequiresReport() {
	_, err := s.orders.CreateOrder(context.Background(), actorFor(s.cashier), s.cashierOrderInput())
	s.Require().NoError(err)

	decision, err := s.sessions.CheckLogout(context.Background(), actorFor(s.cashier))
	s.Require().NoError(err)
	s.False(decision.Allowed)
	s.Equal(pos.LogoutReasonReport, decision.Reason)
}

func (s *POSIntegrationTestSuite) TestCheckLogout_UnpaidDelegatedAfterReport() {
	s.assignWaiter()
	_, err := s.orders.CreateOrder(context.Background(), actorFor(s.waiter), s.waiterOrderInput())
	s.Require().NoError(err)

	// A fresh delegated order counts in both buckets until a report covers it.
	decision, err := s.sessions.CheckLogout(context.Background(), actorFor(s.cashier))
	s.Require().NoError(err)
	s.False(decision.Allowed)
	s.Equal(pos.LogoutReasonBoth, decision.Reason)

	// After the report only the unsettled delegated order still blocks.
	time.Sleep(10 * time.Millisecond)
	_, err = s.sessions.MarkReportProduced(context.Background(), actorFor(s.cashier))
	s.Require().NoError(err)

	decision, err = s.sessions.CheckLogout(context.Background(), actorFor(s.cashier))
	s.Require().NoError(err)
	s.False(decision.Allowed)
	s.Equal(pos.LogoutReasonWaiterThenReport, decision.Reason)
}

func (s *POSIntegrationTestSuite) TestCheckLogout_BothOutstanding() {
	s.assignWaiter()
	_, err := s.orders.CreateOrder(context.Background(), actorFor(s.cashier), s.cashierOrderInput())
	s.Require().NoError(err)
	_, err = s.orders.CreateOrder(context.Background(), actorFor(s.waiter), s.waiterOrderInput())
	s.Require().NoError(err)

	decision, err := s.sessions.CheckLogout(context.Background(), actorFor(s.cashier))
	s.Require().NoError(err)
	s.False(decision.Allowed)
	s.Equal(pos.LogoutReasonBoth, decision.Reason)
}

func (s *POSIntegrationTestSuite) TestCheckLogout_AllowedAfterReport() {
	s.assignWaiter()
	order, err := s.orders.CreateOrder(context.Background(), actorFor(s.waiter), s.waiterOrderInput())
	s.Require().NoError(err)
	_, err = s.orders.MarkPaid(context.Background(), actorFor(s.cashier), order.ID, models.PaymentCash)
	s.Require().NoError(err)

	time.Sleep(10 * time.Millisecond)
	_, err = s.sessions.MarkReportProduced(context.Background(), actorFor(s.cashier))
	s.Require().NoError(err)

	decision, err := s.sessions.CheckLogout(context.Background(), actorFor(s.cashier))
	s.Require().NoError(err)
	s.True(decision.Allowed)
	s.Equal(pos.LogoutReasonNone, decision.Reason)
}

// --- Transfers ---

func (s *POSIntegrationTestSuite) TestTransfer_MovesBatch() {
	s.assignWaiter()
	target := s.createUser("tomek", models.RoleCashier)

	first, err := s.orders.CreateOrder(context.Background(), actorFor(s.waiter), s.waiterOrderInput())
	s.Require().NoError(err)
	second, err := s.orders.CreateOrder(context.Background(), actorFor(s.waiter), s.waiterOrderInput())
	s.Require().NoError(err)

	moved, err := s.transfers.Transfer(context.Background(), actorFor(s.cashier),
		[]int64{first.ID, second.ID}, target.ID)
	s.Require().NoError(err)
	s.Len(moved, 2)

	for _, id := range []int64{first.ID, second.ID} {
		var reloaded models.Order
		s.Require().NoError(s.db.First(&reloaded, id).Error)
		s.Require().NotNil(reloaded.DelegatedToId)
		s.Equal(target.ID, *reloaded.DelegatedToId)
		s.Contains(*reloaded.Notes, "[TRANSFERRED]")
	}

	// Source and target cashiers each hear about the hand-off from their
	// own side, and nobody else does.
	fromEvents := s.router.eventsOn("cashier:" + itoa(s.cashier.ID))
	s.Require().NotEmpty(fromEvents)
	fromEvent, ok := fromEvents[len(fromEvents)-1].(pos.TransferEvent)
	s.Require().True(ok)
	s.Equal(pos.EventTransferredFromYou, fromEvent.Type)
	s.ElementsMatch([]int64{first.ID, second.ID}, fromEvent.OrderIds)

	toEvents := s.router.eventsOn("cashier:" + itoa(target.ID))
	s.Require().NotEmpty(toEvents)
	toEvent, ok := toEvents[len(toEvents)-1].(pos.TransferEvent)
	s.Require().True(ok)
	s.Equal(pos.EventTransferredToYou, toEvent.Type)
	s.Equal(s.cashier.ID, toEvent.FromCashierId)
	s.Equal(target.ID, toEvent.ToCashierId)
	s.Zero(s.router.count("branch:" + itoa(s.branch.ID)))

	var auditCount int64
	s.Require().NoError(s.db.Model(&models.AuditLog{}).
		Where("action = ?", "orders_transferred").Count(&auditCount).Error)
	s.Equal(int64(2), auditCount)
}

func (s *POSIntegrationTestSuite) TestTransfer_AllOrNothing() {
	s.assignWaiter()
	target := s.createUser("tomek", models.RoleCashier)

	valid, err := s.orders.CreateOrder(context.Background(), actorFor(s.waiter), s.waiterOrderInput())
	s.Require().NoError(err)

	_, err = s.transfers.Transfer(context.Background(), actorFor(s.cashier),
		[]int64{valid.ID, 99999}, target.ID)
	s.Require().Error(err)
	s.True(pos.IsKind(err, pos.FailTransferConflict))

	var reloaded models.Order
	s.Require().NoError(s.db.First(&reloaded, valid.ID).Error)
	s.Require().NotNil(reloaded.DelegatedToId)
	s.Equal(s.cashier.ID, *reloaded.DelegatedToId)
	s.NotContains(*reloaded.Notes, "[TRANSFERRED]")
}

func (s *POSIntegrationTestSuite) TestTransfer_TargetValidation() {
	s.assignWaiter()
	order, err := s.orders.CreateOrder(context.Background(), actorFor(s.waiter), s.waiterOrderInput())
	s.Require().NoError(err)

	_, err = s.transfers.Transfer(context.Background(), actorFor(s.cashier),
		[]int64{order.ID}, s.waiter.ID)
	s.Require().Error(err)
	s.True(pos.IsKind(err, pos.FailValidation))

	_, err = s.transfers.Transfer(context.Background(), actorFor(s.cashier),
		[]int64{order.ID}, s.cashier.ID)
	s.Require().Error(err)
	s.True(pos.IsKind(err, pos.FailValidation))
}

// --- PINs and assignments ---

func (s *POSIntegrationTestSuite) TestCashierPinRoundtrip() {
	ctx := context.Background()
	s.Require().NoError(s.pins.SetCashierPin(ctx, s.cashier.ID, s.branch.ID, "4321"))

	s.True(s.pins.VerifyCashierPin(ctx, s.cashier.ID, s.branch.ID, "4321"))
	s.False(s.pins.VerifyCashierPin(ctx, s.cashier.ID, s.branch.ID, "1111"))
	s.False(s.pins.VerifyCashierPin(ctx, s.cashier.ID+1, s.branch.ID, "4321"))

	// Replacement invalidates the previous PIN.
	s.Require().NoError(s.pins.SetCashierPin(ctx, s.cashier.ID, s.branch.ID, "5678"))
	s.False(s.pins.VerifyCashierPin(ctx, s.cashier.ID, s.branch.ID, "4321"))
	s.True(s.pins.VerifyCashierPin(ctx, s.cashier.ID, s.branch.ID, "5678"))
}

func (s *POSIntegrationTestSuite) TestAdminPinPerPurpose() {
	ctx := context.Background()
	s.Require().NoError(s.pins.SetAdminPin(ctx, s.branch.ID, pos.PinPurposeDelegation, "1111"))
	s.Require().NoError(s.pins.SetAdminPin(ctx, s.branch.ID, pos.PinPurposeOrderEditing, "2222"))

	s.True(s.pins.VerifyAdminPin(ctx, s.branch.ID, pos.PinPurposeDelegation, "1111"))
	s.False(s.pins.VerifyAdminPin(ctx, s.branch.ID, pos.PinPurposeDelegation, "2222"))
	s.True(s.pins.VerifyAdminPin(ctx, s.branch.ID, pos.PinPurposeOrderEditing, "2222"))

	err := s.pins.SetAdminPin(ctx, s.branch.ID, "unknown-purpose", "3333")
	s.Require().Error(err)
	s.True(pos.IsKind(err, pos.FailValidation))

	err = s.pins.SetCashierPin(ctx, s.cashier.ID, s.branch.ID, "12ab")
	s.Require().Error(err)
	s.True(pos.IsKind(err, pos.FailValidation))
}

func (s *POSIntegrationTestSuite) TestAssignmentLifecycle() {
	ctx := context.Background()

	assignment, err := s.assignments.Get(ctx, s.waiter.ID, s.branch.ID)
	s.Require().NoError(err)
	s.Nil(assignment)

	_, err = s.assignments.Set(ctx, s.waiter.ID, s.branch.ID, s.cashier.ID, nil)
	s.Require().NoError(err)

	assignment, err = s.assignments.Get(ctx, s.waiter.ID, s.branch.ID)
	s.Require().NoError(err)
	s.Require().NotNil(assignment)
	s.Equal(s.cashier.ID, assignment.CashierId)

	// Reassignment replaces in place.
	other := s.createUser("tomek", models.RoleCashier)
	_, err = s.assignments.Set(ctx, s.waiter.ID, s.branch.ID, other.ID, nil)
	s.Require().NoError(err)

	var count int64
	s.Require().NoError(s.db.Model(&models.WaiterAssignment{}).
		Where("waiter_id = ?", s.waiter.ID).Count(&count).Error)
	s.Equal(int64(1), count)

	removed, err := s.assignments.Clear(ctx, s.waiter.ID, s.branch.ID)
	s.Require().NoError(err)
	s.True(removed)

	removed, err = s.assignments.Clear(ctx, s.waiter.ID, s.branch.ID)
	s.Require().NoError(err)
	s.False(removed)

	_, err = s.assignments.Set(ctx, s.waiter.ID, s.branch.ID, s.waiter.ID, nil)
	s.Require().Error(err)
	s.True(pos.IsKind(err, pos.FailValidation))
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

func TestPOSIntegrationTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}
	suite.Run(t, new(POSIntegrationTestSuite))
}
