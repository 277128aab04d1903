package models

import (
	"context"
	"strings"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ledgerEffect int

const (
	ledgerEffectNone ledgerEffect = iota
	ledgerEffectDeduct
	ledgerEffectAdd
	// pre-flight sufficiency check only, nothing is written
	ledgerEffectCheck
)

type orderTransition struct {
	From   []OrderStatus
	To     OrderStatus
	Effect ledgerEffect
}

var orderTransitions = map[OrderChannel]map[OrderAction]orderTransition{
	OrderChannelSales: {
		OrderActionConfirm: {From: []OrderStatus{OrderStatusPending}, To: OrderStatusConfirmed},
		OrderActionShip:    {From: []OrderStatus{OrderStatusConfirmed}, To: OrderStatusShipped, Effect: ledgerEffectDeduct},
		OrderActionDeliver: {From: []OrderStatus{OrderStatusShipped}, To: OrderStatusDelivered},
		OrderActionCancel:  {From: []OrderStatus{OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped}, To: OrderStatusCancelled},
	},
	OrderChannelPurchase: {
		OrderActionApprove: {From: []OrderStatus{OrderStatusPending}, To: OrderStatusApproved},
		OrderActionReceive: {From: []OrderStatus{OrderStatusApproved}, To: OrderStatusReceived, Effect: ledgerEffectAdd},
		OrderActionCancel:  {From: []OrderStatus{OrderStatusPending, OrderStatusApproved}, To: OrderStatusCancelled},
	},
	OrderChannelOnline: {
		OrderActionAccept:  {From: []OrderStatus{OrderStatusPending}, To: OrderStatusAccepted, Effect: ledgerEffectCheck},
		OrderActionShip:    {From: []OrderStatus{OrderStatusAccepted}, To: OrderStatusShipped, Effect: ledgerEffectDeduct},
		OrderActionDeliver: {From: []OrderStatus{OrderStatusShipped}, To: OrderStatusDelivered},
		OrderActionCancel:  {From: []OrderStatus{OrderStatusPending, OrderStatusAccepted, OrderStatusShipped}, To: OrderStatusCancelled},
	},
}

// nextOrderStatus looks up action for an order of channel currently in from.
func nextOrderStatus(channel OrderChannel, from OrderStatus, action OrderAction) (orderTransition, error) {
	actions, ok := orderTransitions[channel]
	if !ok {
		return orderTransition{}, utils.NewValidationError("unknown order channel %s", channel)
	}
	t, ok := actions[action]
	if !ok {
		return orderTransition{}, utils.NewValidationError("%s orders cannot %s", strings.ToLower(string(channel)), action)
	}
	for _, s := range t.From {
		if s == from {
			return t, nil
		}
	}
	return orderTransition{}, utils.NewValidationError("cannot %s an order that is %s", action, from)
}

// AllowedOrderActions lists what may be done next with an order in status.
func AllowedOrderActions(channel OrderChannel, status OrderStatus) []OrderAction {
	var result []OrderAction
	for _, a := range []OrderAction{OrderActionConfirm, OrderActionApprove, OrderActionAccept, OrderActionShip,
		OrderActionDeliver, OrderActionReceive, OrderActionCancel} {
		if _, err := nextOrderStatus(channel, status, a); err == nil {
			result = append(result, a)
		}
	}
	return result
}

type OrderStatusHistory struct {
	ID          int       `gorm:"primary_key" json:"id"`
	OrderId     int       `gorm:"not null;index" json:"order_id"`
	FromStatus  string    `gorm:"size:20" json:"from_status"`
	ToStatus    string    `gorm:"size:20;not null" json:"to_status"`
	Action      string    `gorm:"size:20;not null" json:"action"`
	ActorUserId int       `gorm:"index" json:"actor_user_id"`
	ActorName   string    `gorm:"size:100" json:"actor_name"`
	Notes       string    `gorm:"type:text" json:"notes"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func createOrderStatusHistory(tx *gorm.DB, orderId int, from OrderStatus, to OrderStatus, action string, notes string) error {
	ctx := tx.Statement.Context
	history := OrderStatusHistory{
		OrderId:    orderId,
		FromStatus: string(from),
		ToStatus:   string(to),
		Action:     action,
		Notes:      notes,
	}
	history.ActorUserId, _ = utils.GetUserIdFromContext(ctx)
	history.ActorName, _ = utils.GetUserNameFromContext(ctx)
	return tx.Create(&history).Error
}

func GetOrderStatusHistory(ctx context.Context, orderId int) ([]*OrderStatusHistory, error) {
	// visibility follows the order
	if _, err := GetOrder(ctx, orderId); err != nil {
		return nil, err
	}
	db := config.GetDB()
	var histories []*OrderStatusHistory
	if err := db.WithContext(ctx).Where("order_id = ?", orderId).Order("id").Find(&histories).Error; err != nil {
		return nil, utils.Internal("get order status history", err)
	}
	return histories, nil
}

type TransitionOptions struct {
	Notes              string `json:"notes"`
	TrackingNumber     string `json:"tracking_number" binding:"max=100"`
	CancellationReason string `json:"cancellation_reason" binding:"max=255"`
}

func movementTypeFor(channel OrderChannel) MovementReferenceType {
	switch channel {
	case OrderChannelPurchase:
		return MovementReferencePurchaseReceipt
	case OrderChannelOnline:
		return MovementReferenceOnlineShipment
	default:
		return MovementReferenceSalesShipment
	}
}

// orderLedgerChanges maps lines to ledger deltas. Assembly lines are skipped: their materials were
// consumed when the assembly was sold.
func orderLedgerChanges(lines []OrderLine, effect ledgerEffect) []ledgerChange {
	changes := make([]ledgerChange, 0, len(lines))
	for _, l := range lines {
		if l.AssemblyId != nil {
			continue
		}
		delta := l.Quantity
		if effect == ledgerEffectDeduct || effect == ledgerEffectCheck {
			delta = delta.Neg()
		}
		changes = append(changes, ledgerChange{ItemId: l.ItemId, LocationId: l.LocationId, Delta: delta})
	}
	return changes
}

// TransitionOrder moves an order along its channel's state machine. The action must be allowed from
// the status the caller observed; inside the transaction the order is re-read under lock and a status
// that moved in between is reported as a conflict. Ledger effects, the status write and the history
// row commit together.
func TransitionOrder(ctx context.Context, orderId int, action OrderAction, opts *TransitionOptions) (*Order, error) {
	if opts == nil {
		opts = &TransitionOptions{}
	}
	if err := utils.ValidateStruct(opts); err != nil {
		return nil, err
	}
	snapshot, err := GetOrder(ctx, orderId)
	if err != nil {
		return nil, err
	}
	scope := ScopeFromContext(ctx)
	if !scope.CanTransition(snapshot.Channel, action, snapshot.LocationId) {
		return nil, ErrForbidden
	}
	if scope.CustomerOnly && snapshot.Status != OrderStatusPending {
		return nil, ErrForbidden
	}
	t, err := nextOrderStatus(snapshot.Channel, snapshot.Status, action)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var order Order
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Preload("Lines").First(&order, orderId).Error; err != nil {
			return err
		}
		if order.Status != snapshot.Status {
			return utils.NewConflictError("order", order.ID, string(snapshot.Status), string(order.Status))
		}

		switch t.Effect {
		case ledgerEffectCheck:
			shortages, err := findShortages(tx, orderLedgerChanges(order.Lines, t.Effect))
			if err != nil {
				return err
			}
			if len(shortages) > 0 {
				return utils.NewShortageError("insufficient stock", shortages)
			}
		case ledgerEffectDeduct, ledgerEffectAdd:
			ref := movementRef{Type: movementTypeFor(order.Channel), Id: order.ID, Description: order.OrderNumber}
			if _, err := applyLedgerChanges(tx, orderLedgerChanges(order.Lines, t.Effect), ref); err != nil {
				return err
			}
		}

		now := time.Now()
		updates := map[string]interface{}{"status": t.To}
		switch t.To {
		case OrderStatusAccepted:
			updates["accepted_at"] = now
			order.AcceptedAt = &now
		case OrderStatusShipped:
			updates["shipped_at"] = now
			order.ShippedAt = &now
			if opts.TrackingNumber != "" {
				updates["tracking_number"] = opts.TrackingNumber
				order.TrackingNumber = opts.TrackingNumber
			}
		case OrderStatusDelivered, OrderStatusReceived:
			updates["delivered_at"] = now
			order.DeliveredAt = &now
			if order.PaymentMethod == PaymentMethodCashOnDelivery && order.PaymentStatus == PaymentStatusUnpaid {
				updates["payment_status"] = PaymentStatusPaid
				order.PaymentStatus = PaymentStatusPaid
			}
		case OrderStatusCancelled:
			updates["cancelled_at"] = now
			updates["cancellation_reason"] = opts.CancellationReason
			order.CancelledAt = &now
			order.CancellationReason = opts.CancellationReason
		}
		if err := tx.Model(&Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
			return err
		}
		order.Status = t.To

		notes := opts.Notes
		if notes == "" {
			notes = opts.CancellationReason
		}
		return createOrderStatusHistory(tx, order.ID, snapshot.Status, t.To, string(action), notes)
	})
	if err != nil {
		return nil, utils.Internal("transition order", err)
	}

	RecordAudit(ctx, "Order", order.ID, AuditActionTransition, snapshot, order)
	return &order, nil
}

// orderLinesTotal is the sum of line totals; used when lines were built outside CreateOrder.
func orderLinesTotal(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.TotalPrice)
	}
	return total
}
