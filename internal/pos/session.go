package pos

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"branchpos/internal/database/models"
)

// Logout decision reasons. Clients branch on these to walk the cashier
// through the required steps in order.
const (
	LogoutReasonNone             = "none"
	LogoutReasonReport           = "report"
	LogoutReasonWaiterThenReport = "waiter_orders_then_report"
	LogoutReasonBoth             = "both"
)

type LogoutDecision struct {
	Allowed           bool   `json:"allowed"`
	Reason            string `json:"reason"`
	OrdersSinceReport int64  `json:"orders_since_report"`
	UnpaidDelegated   int64  `json:"unpaid_delegated"`
}

// DecideLogout is the pure gate: a cashier may leave only with no unsettled
// delegated orders and no settled activity since the last report.
func DecideLogout(ordersSinceReport, unpaidDelegated int64) LogoutDecision {
	d := LogoutDecision{
		OrdersSinceReport: ordersSinceReport,
		UnpaidDelegated:   unpaidDelegated,
	}
	switch {
	case ordersSinceReport > 0 && unpaidDelegated > 0:
		d.Reason = LogoutReasonBoth
	case unpaidDelegated > 0:
		d.Reason = LogoutReasonWaiterThenReport
	case ordersSinceReport > 0:
		d.Reason = LogoutReasonReport
	default:
		d.Allowed = true
		d.Reason = LogoutReasonNone
	}
	return d
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SessionService tracks the cashier's working day: one session row per
// cashier per calendar date, the activity counters on it, and the
// end-of-day reporting gate.
type SessionService struct {
	db *gorm.DB
}

func NewSessionService(db *gorm.DB) *SessionService {
	return &SessionService{db: db}
}

// GetOrCreateToday returns the cashier's session for the current date,
// opening one if this is the first touch of the day. The initial order count
// snapshots orders already created today so a mid-day restart does not zero
// the numbers.
func (s *SessionService) GetOrCreateToday(ctx context.Context, cashierId, branchId int64) (*models.CashierSession, error) {
	today := startOfDay(time.Now())

	var session models.CashierSession
	err := s.db.WithContext(ctx).
		Where("cashier_id = ? AND login_date = ?", cashierId, today).
		First(&session).Error
	if err == nil {
		return &session, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var createdToday int64
	if err := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("created_by_id = ? AND created_at >= ?", cashierId, today).
		Count(&createdToday).Error; err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	session = models.CashierSession{
		CashierId:         cashierId,
		BranchId:          branchId,
		LoginDate:         today,
		InitialOrderCount: createdToday,
		CurrentOrderCount: createdToday,
		SessionStart:      now,
		LastActivity:      now,
		IsActive:          true,
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		// Lost the first-touch race: the unique (cashier, day) index failed
		// the insert, so the winner's row is already there.
		var existing models.CashierSession
		lookupErr := s.db.WithContext(ctx).
			Where("cashier_id = ? AND login_date = ?", cashierId, today).
			First(&existing).Error
		if lookupErr == nil {
			return &existing, nil
		}
		return nil, err
	}
	return &session, nil
}

// UpdateOrderCount overwrites the session's current count and refreshes the
// activity timestamp. Used when a client reconciles the day's numbers.
func (s *SessionService) UpdateOrderCount(ctx context.Context, sessionId, newCount int64) error {
	res := s.db.WithContext(ctx).Model(&models.CashierSession{}).
		Where("id = ?", sessionId).
		Updates(map[string]interface{}{
			"current_order_count": newCount,
			"last_activity":       time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return failf(FailNotFound, "session %d not found", sessionId)
	}
	return nil
}

// TrackOrderCreated bumps the session activity counters. It is best effort:
// the order is already committed, so a session bookkeeping failure is logged
// and never propagated.
func (s *SessionService) TrackOrderCreated(ctx context.Context, cashierId, branchId int64) {
	session, err := s.GetOrCreateToday(ctx, cashierId, branchId)
	if err != nil {
		log.Printf("session: tracking order for cashier %d failed: %v", cashierId, err)
		return
	}
	err = s.db.WithContext(ctx).Model(&models.CashierSession{}).
		Where("id = ?", session.ID).
		Updates(map[string]interface{}{
			"current_order_count": gorm.Expr("current_order_count + 1"),
			"last_activity":       time.Now().UTC(),
		}).Error
	if err != nil {
		log.Printf("session: tracking order for cashier %d failed: %v", cashierId, err)
	}
}

// MarkReportProduced records that the cashier ran the end-of-day report.
// The operation is idempotent: a second call on the same session leaves the
// original timestamp in place and writes no further audit rows.
func (s *SessionService) MarkReportProduced(ctx context.Context, actor ActorContext) (*models.CashierSession, error) {
	if !actor.Role.CanCheckout() {
		return nil, failf(FailForbidden, "role %s has no daily session", actor.Role)
	}

	session, err := s.GetOrCreateToday(ctx, actor.ID, actor.BranchId)
	if err != nil {
		return nil, err
	}

	var result models.CashierSession
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&result, session.ID).Error; err != nil {
			return err
		}
		if result.ReportProduced {
			return nil
		}

		now := time.Now().UTC()
		result.ReportProduced = true
		result.ReportProducedAt = &now
		if err := tx.Model(&models.CashierSession{}).Where("id = ?", result.ID).
			Updates(map[string]interface{}{
				"report_produced":    true,
				"report_produced_at": now,
				"last_activity":      now,
			}).Error; err != nil {
			return err
		}

		audit := models.AuditLog{
			UserId: actor.ID,
			Action: "report_produced",
			Description: fmt.Sprintf("daily report produced by %s for branch %d",
				actor.Name, actor.BranchId),
		}
		return tx.Create(&audit).Error
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// CheckLogout evaluates the logout gate without writing anything. Activity
// since the last report counts orders the cashier created as well as orders
// delegated to them; before the first report of the day everything since
// midnight counts.
func (s *SessionService) CheckLogout(ctx context.Context, actor ActorContext) (*LogoutDecision, error) {
	if !actor.Role.CanCheckout() {
		d := DecideLogout(0, 0)
		return &d, nil
	}

	today := startOfDay(time.Now())
	since := today

	var session models.CashierSession
	err := s.db.WithContext(ctx).
		Where("cashier_id = ? AND login_date = ?", actor.ID, today).
		First(&session).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil && session.ReportProduced && session.ReportProducedAt != nil {
		since = *session.ReportProducedAt
	}

	// Orders the last report has not covered yet, whether created by the
	// cashier or delegated to them.
	var ordersSinceReport int64
	if err := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("(created_by_id = ? OR delegated_to_id = ?) AND created_at > ?",
			actor.ID, actor.ID, since).
		Count(&ordersSinceReport).Error; err != nil {
		return nil, err
	}

	var unpaidDelegated int64
	if err := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("delegated_to_id = ? AND status = ? AND notes LIKE ?",
			actor.ID, models.OrderPending, "%"+WaiterOrderTag+"%").
		Count(&unpaidDelegated).Error; err != nil {
		return nil, err
	}

	d := DecideLogout(ordersSinceReport, unpaidDelegated)
	return &d, nil
}
