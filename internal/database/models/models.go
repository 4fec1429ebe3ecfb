package models

import "time"

type Role string

const (
	RoleCashier     Role = "cashier"
	RoleWaiter      Role = "waiter"
	RoleBranchAdmin Role = "branch_admin"
	RoleSuperUser   Role = "super_user"
)

// CanCheckout reports whether the role finalizes payments and owns a daily
// session. CanDelegate reports whether the role submits orders routed to a
// cashier for payment.
func (r Role) CanCheckout() bool { return r == RoleCashier }
func (r Role) CanDelegate() bool { return r == RoleWaiter }

func (r Role) CanManageOrders() bool {
	switch r {
	case RoleCashier, RoleBranchAdmin, RoleSuperUser:
		return true
	default:
		return false
	}
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Terminal() bool { return s == OrderPaid || s == OrderCancelled }

type ServiceChannel string

const (
	ChannelOnTable  ServiceChannel = "on_table"
	ChannelTakeAway ServiceChannel = "take_away"
	ChannelDelivery ServiceChannel = "delivery"
	ChannelCard     ServiceChannel = "card"
)

func ValidServiceChannel(c ServiceChannel) bool {
	switch c {
	case ChannelOnTable, ChannelTakeAway, ChannelDelivery, ChannelCard:
		return true
	default:
		return false
	}
}

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentQRCode PaymentMethod = "qr_code"
)

type Branch struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"type:varchar(128);not null"`
	Code      string `gorm:"type:varchar(16);uniqueIndex;not null"`
	IsActive  bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type User struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Username  string `gorm:"type:varchar(64);uniqueIndex;not null"`
	Firstname string `gorm:"type:varchar(64);not null"`
	Lastname  string `gorm:"type:varchar(64);not null"`
	Role      Role   `gorm:"type:varchar(32);not null"`
	BranchId  int64  `gorm:"index;not null"`
	IsActive  bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u User) FullName() string { return u.Firstname + " " + u.Lastname }

type Table struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	TableNumber string `gorm:"type:varchar(16);index;not null"`
	BranchId    int64  `gorm:"index;not null"`
	IsActive    bool   `gorm:"not null;default:true"`
	CreatedAt   time.Time
}

type MenuItem struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"type:varchar(128);index;not null"`
	Price     string `gorm:"type:varchar(32);not null"`
	BranchId  int64  `gorm:"index;not null"`
	IsActive  bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Order struct {
	ID           int64       `gorm:"primaryKey;autoIncrement"`
	OrderNumber  string      `gorm:"type:varchar(32);index;not null"`
	OrderCounter int64       `gorm:"not null;uniqueIndex:idx_orders_branch_counter,priority:2"`
	BranchId     int64       `gorm:"not null;uniqueIndex:idx_orders_branch_counter,priority:1"`
	TotalAmount  string      `gorm:"type:varchar(32);not null"`
	Status       OrderStatus `gorm:"type:varchar(16);index;not null"`

	ServiceChannel ServiceChannel `gorm:"type:varchar(16);not null"`
	PaymentMethod  *PaymentMethod `gorm:"type:varchar(16)"`

	CreatedById   int64  `gorm:"index;not null"`
	DelegatedToId *int64 `gorm:"index"`
	TableId       *int64

	Notes *string `gorm:"type:text"`

	EditCount      int32 `gorm:"not null;default:0"`
	LastEditedById *int64
	LastEditedAt   *time.Time

	PaidAt               *time.Time
	ClearedFromDelegated bool `gorm:"not null;default:false"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Items []OrderItem `gorm:"foreignKey:OrderId"`
}

type OrderItem struct {
	ID         int64   `gorm:"primaryKey;autoIncrement"`
	OrderId    int64   `gorm:"index;not null"`
	MenuItemId int64   `gorm:"not null"`
	Quantity   int32   `gorm:"not null"`
	UnitPrice  string  `gorm:"type:varchar(32);not null"`
	LineTotal  string  `gorm:"type:varchar(32);not null"`
	Notes      *string `gorm:"type:text"`
	IsNew      bool    `gorm:"not null;default:false"`
	IsRemoved  bool    `gorm:"not null;default:false"`
	CreatedAt  time.Time
}

type OrderEditHistory struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	OrderId       int64     `gorm:"index;not null"`
	EditedById    int64     `gorm:"not null"`
	EditedAt      time.Time `gorm:"not null"`
	PreviousTotal string    `gorm:"type:varchar(32);not null"`
	NewTotal      string    `gorm:"type:varchar(32);not null"`
	ChangeSummary *string   `gorm:"type:text"`
}

type WaiterAssignment struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	WaiterId     int64  `gorm:"not null;uniqueIndex:idx_assignment_waiter_branch,priority:1"`
	BranchId     int64  `gorm:"not null;uniqueIndex:idx_assignment_waiter_branch,priority:2"`
	CashierId    int64  `gorm:"not null"`
	AssignedById *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CashierSession struct {
	ID                int64     `gorm:"primaryKey;autoIncrement"`
	CashierId         int64     `gorm:"not null;uniqueIndex:idx_session_cashier_day,priority:1"`
	BranchId          int64     `gorm:"index;not null"`
	LoginDate         time.Time `gorm:"type:date;not null;uniqueIndex:idx_session_cashier_day,priority:2"`
	InitialOrderCount int64     `gorm:"not null;default:0"`
	CurrentOrderCount int64     `gorm:"not null;default:0"`
	ReportProduced    bool      `gorm:"not null;default:false"`
	ReportProducedAt  *time.Time
	SessionStart      time.Time
	LastActivity      time.Time
	IsActive          bool `gorm:"not null;default:true"`
}

type OrderCounter struct {
	ID             int64 `gorm:"primaryKey;autoIncrement"`
	BranchId       int64 `gorm:"uniqueIndex;not null"`
	CurrentCounter int64 `gorm:"not null;default:0"`
	LastResetDate  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type CashierPin struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	CashierId int64  `gorm:"not null;uniqueIndex:idx_pin_cashier_branch,priority:1"`
	BranchId  int64  `gorm:"not null;uniqueIndex:idx_pin_cashier_branch,priority:2"`
	PinHash   string `gorm:"type:varchar(128);not null"`
	IsActive  bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AdminPin is a branch-level override secret. Purpose distinguishes the two
// flows: "delegation-assignment" and "order-editing-override". One active
// record per (branch, purpose).
type AdminPin struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	BranchId  int64  `gorm:"not null;uniqueIndex:idx_pin_branch_purpose,priority:1"`
	Purpose   string `gorm:"type:varchar(50);not null;uniqueIndex:idx_pin_branch_purpose,priority:2"`
	PinHash   string `gorm:"type:varchar(128);not null"`
	IsActive  bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type AuditLog struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	UserId      int64  `gorm:"index"`
	Action      string `gorm:"type:varchar(128);not null"`
	Description string `gorm:"type:text"`
	CreatedAt   time.Time
}
