package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
)

type OnlineOrderPreValidation struct {
	Valid          bool             `json:"valid"`
	Problems       []string         `json:"problems"`
	Shortages      []utils.Shortage `json:"shortages"`
	Subtotal       decimal.Decimal  `json:"subtotal"`
	DiscountAmount decimal.Decimal  `json:"discount_amount"`
	TotalAmount    decimal.Decimal  `json:"total_amount"`
	Promo          *PromoEvaluation `json:"promo,omitempty"`
}

// PreValidateOnlineOrder runs every check CreateOrder and the later ship would run, without writing.
// All problems are reported together.
func PreValidateOnlineOrder(ctx context.Context, input *NewOrder) (*OnlineOrderPreValidation, error) {
	input.Channel = OrderChannelOnline
	if err := input.normalize(ctx); err != nil {
		return nil, err
	}
	problems, items, err := input.validate(ctx)
	if err != nil {
		return nil, utils.Internal("pre-validate online order", err)
	}
	result := &OnlineOrderPreValidation{Problems: problems}

	lines, subtotal := input.pricedLines(items)
	result.Subtotal = subtotal
	result.TotalAmount = subtotal

	changes := orderLedgerChanges(lines, ledgerEffectDeduct)
	// unknown items are already reported as problems
	known := changes[:0]
	for _, c := range changes {
		if _, ok := items[c.ItemId]; ok {
			known = append(known, c)
		}
	}
	shortages, err := findShortages(config.GetDB().WithContext(ctx), known)
	if err != nil {
		return nil, utils.Internal("pre-validate online order", err)
	}
	result.Shortages = shortages
	if len(shortages) > 0 {
		result.Problems = append(result.Problems, "insufficient stock")
	}

	if code := input.promoCode(); code != "" {
		eval, err := EvaluatePromo(ctx, &PromoEvaluationInput{
			Code:        code,
			UserId:      input.CustomerUserId,
			OrderAmount: subtotal,
			ItemIds:     input.itemIds(),
		})
		if err != nil {
			return nil, err
		}
		result.Promo = eval
		if eval.Valid {
			result.DiscountAmount = eval.DiscountAmount
			result.TotalAmount = subtotal.Sub(eval.DiscountAmount)
		} else {
			result.Problems = append(result.Problems, eval.Reason)
		}
	}

	result.Valid = len(result.Problems) == 0
	return result, nil
}

type AttentionReason string

const (
	AttentionReasonStalePending  AttentionReason = "pending too long"
	AttentionReasonStaleAccepted AttentionReason = "accepted but not shipped"
	AttentionReasonStaleShipped  AttentionReason = "shipped but not delivered"
	AttentionReasonShortStock    AttentionReason = "insufficient stock"
)

type OrderAttention struct {
	Order     *Order            `json:"order"`
	Reasons   []AttentionReason `json:"reasons"`
	AgeHours  float64           `json:"age_hours"`
	Shortages []utils.Shortage  `json:"shortages,omitempty"`
}

// GetOrdersNeedingAttention reports open online orders that sat too long in their status, and pending
// or accepted ones whose lines cannot currently be covered.
func GetOrdersNeedingAttention(ctx context.Context, now time.Time) ([]*OrderAttention, error) {
	scope := ScopeFromContext(ctx)
	if !scope.IsStaff() {
		return nil, ErrForbidden
	}
	pending, accepted, shipped := config.OnlineAttentionThresholds()

	db := config.GetDB()
	var orders []*Order
	if err := db.WithContext(ctx).Preload("Lines").
		Where("channel = ? AND status IN ?", OrderChannelOnline,
			[]OrderStatus{OrderStatusPending, OrderStatusAccepted, OrderStatusShipped}).
		Order("created_at").Find(&orders).Error; err != nil {
		return nil, utils.Internal("orders needing attention", err)
	}

	var result []*OrderAttention
	for _, o := range orders {
		var reasons []AttentionReason
		since := o.CreatedAt
		switch o.Status {
		case OrderStatusPending:
			if now.Sub(since) > pending {
				reasons = append(reasons, AttentionReasonStalePending)
			}
		case OrderStatusAccepted:
			if o.AcceptedAt != nil {
				since = *o.AcceptedAt
			}
			if now.Sub(since) > accepted {
				reasons = append(reasons, AttentionReasonStaleAccepted)
			}
		case OrderStatusShipped:
			if o.ShippedAt != nil {
				since = *o.ShippedAt
			}
			if now.Sub(since) > shipped {
				reasons = append(reasons, AttentionReasonStaleShipped)
			}
		}

		var shortages []utils.Shortage
		if o.Status == OrderStatusPending || o.Status == OrderStatusAccepted {
			s, err := findShortages(db.WithContext(ctx), orderLedgerChanges(o.Lines, ledgerEffectDeduct))
			if err != nil && !utils.IsValidation(err) {
				return nil, utils.Internal("orders needing attention", err)
			}
			if len(s) > 0 {
				shortages = s
				reasons = append(reasons, AttentionReasonShortStock)
			}
		}

		if len(reasons) == 0 {
			continue
		}
		result = append(result, &OrderAttention{
			Order:     o,
			Reasons:   reasons,
			AgeHours:  now.Sub(since).Hours(),
			Shortages: shortages,
		})
	}
	return result, nil
}

type OnlineOrderAnalytics struct {
	From                   time.Time             `json:"from"`
	To                     time.Time             `json:"to"`
	TotalOrders            int64                 `json:"total_orders"`
	CountByStatus          map[OrderStatus]int64 `json:"count_by_status"`
	DeliveredRevenue       decimal.Decimal       `json:"delivered_revenue"`
	DiscountTotal          decimal.Decimal       `json:"discount_total"`
	CancellationRate       decimal.Decimal       `json:"cancellation_rate"`
	AverageHoursToDelivery decimal.Decimal       `json:"average_hours_to_delivery"`
}

type statusAggregate struct {
	Status        OrderStatus
	Count         int64
	TotalAmount   decimal.Decimal
	TotalDiscount decimal.Decimal
}

// GetOnlineOrderAnalytics summarizes online orders created in [from, to).
func GetOnlineOrderAnalytics(ctx context.Context, from time.Time, to time.Time) (*OnlineOrderAnalytics, error) {
	scope := ScopeFromContext(ctx)
	if !scope.IsManager() {
		return nil, ErrForbidden
	}
	if !from.Before(to) {
		return nil, utils.NewValidationError("from must be before to")
	}

	db := config.GetDB()
	var rows []statusAggregate
	if err := db.WithContext(ctx).Model(&Order{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS total_amount, COALESCE(SUM(discount_amount), 0) AS total_discount").
		Where("channel = ? AND created_at >= ? AND created_at < ?", OrderChannelOnline, from, to).
		Group("status").Scan(&rows).Error; err != nil {
		return nil, utils.Internal("online order analytics", err)
	}

	result := &OnlineOrderAnalytics{
		From:          from,
		To:            to,
		CountByStatus: make(map[OrderStatus]int64),
	}
	for _, r := range rows {
		result.CountByStatus[r.Status] = r.Count
		result.TotalOrders += r.Count
		if r.Status != OrderStatusCancelled {
			result.DiscountTotal = result.DiscountTotal.Add(r.TotalDiscount)
		}
		if r.Status == OrderStatusDelivered {
			result.DeliveredRevenue = r.TotalAmount
		}
	}
	if result.TotalOrders > 0 {
		result.CancellationRate = decimal.NewFromInt(result.CountByStatus[OrderStatusCancelled]).
			DivRound(decimal.NewFromInt(result.TotalOrders), 4)
	}

	var delivered []*Order
	if err := db.WithContext(ctx).Select("id, location_id, customer_user_id, created_at, delivered_at").
		Where("channel = ? AND status = ? AND created_at >= ? AND created_at < ? AND delivered_at IS NOT NULL",
			OrderChannelOnline, OrderStatusDelivered, from, to).
		Find(&delivered).Error; err != nil {
		return nil, utils.Internal("online order analytics", err)
	}
	if len(delivered) > 0 {
		var hours float64
		for _, o := range delivered {
			hours += o.DeliveredAt.Sub(o.CreatedAt).Hours()
		}
		result.AverageHoursToDelivery = decimal.NewFromFloat(hours / float64(len(delivered))).Round(2)
	}
	return result, nil
}
