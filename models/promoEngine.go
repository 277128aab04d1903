package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PromoEvaluationInput struct {
	Code        string          `json:"code" binding:"required"`
	UserId      *int            `json:"user_id"`
	OrderAmount decimal.Decimal `json:"order_amount"`
	ItemIds     []int           `json:"item_ids"`
}

type PromoEvaluation struct {
	Valid          bool            `json:"valid"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Reason         string          `json:"reason,omitempty"`
	PromoCodeId    int             `json:"promo_code_id,omitempty"`
	Code           string          `json:"code"`
}

func rejectPromo(code string, reason string) PromoEvaluation {
	return PromoEvaluation{Valid: false, DiscountAmount: decimal.Zero, Reason: reason, Code: code}
}

// EvaluatePromoSnapshot decides whether promo applies and how much it takes off. It reads nothing but
// its arguments: userUsageCount is the number of usages userId already has for this code.
// Checks short-circuit in a fixed order and the first failing check names the reason.
func EvaluatePromoSnapshot(promo *PromoCode, userId *int, userUsageCount int64, orderAmount decimal.Decimal, itemIds []int, now time.Time) PromoEvaluation {
	if promo == nil {
		return rejectPromo("", "promo code not found")
	}
	code := promo.Code
	if !promo.Active() {
		return rejectPromo(code, "promo code is inactive")
	}
	if now.Before(promo.StartsAt) {
		return rejectPromo(code, "promo code is not yet valid")
	}
	if promo.EndsAt != nil && now.After(*promo.EndsAt) {
		return rejectPromo(code, "promo code has expired")
	}
	if promo.UsageLimit != nil && promo.UsedCount >= *promo.UsageLimit {
		return rejectPromo(code, "promo code usage limit reached")
	}
	if promo.MinimumOrderAmount != nil && orderAmount.LessThan(*promo.MinimumOrderAmount) {
		return rejectPromo(code, "order amount is below the promo minimum of "+promo.MinimumOrderAmount.String())
	}
	if len(promo.Recipients) > 0 {
		if userId == nil {
			return rejectPromo(code, "promo code requires a signed-in customer")
		}
		member := false
		for _, r := range promo.Recipients {
			if r.UserId == *userId {
				member = true
				break
			}
		}
		if !member {
			return rejectPromo(code, "customer is not eligible for this promo code")
		}
	}
	if userId != nil && promo.UsageLimitPerUser != nil && userUsageCount >= int64(*promo.UsageLimitPerUser) {
		return rejectPromo(code, "promo code already used the maximum number of times by this customer")
	}
	if len(promo.Items) > 0 {
		eligible := make(map[int]bool, len(promo.Items))
		for _, it := range promo.Items {
			eligible[it.ItemId] = true
		}
		matched := false
		for _, id := range itemIds {
			if eligible[id] {
				matched = true
				break
			}
		}
		if !matched {
			return rejectPromo(code, "order has no items eligible for this promo code")
		}
	}

	discount := utils.CalculateDiscountAmount(orderAmount, promo.DiscountValue, promo.DiscountType == DiscountTypePercentage)
	discount = utils.ClampDiscount(discount, promo.MaximumDiscountAmount, orderAmount)
	return PromoEvaluation{Valid: true, DiscountAmount: discount, PromoCodeId: promo.ID, Code: code}
}

func countUserPromoUsages(db *gorm.DB, promoId int, userId *int) (int64, error) {
	if userId == nil {
		return 0, nil
	}
	var count int64
	err := db.Model(&PromoCodeUsage{}).Where("promo_code_id = ? AND user_id = ?", promoId, *userId).Count(&count).Error
	return count, err
}

// EvaluatePromo previews a promo without locking or recording anything.
func EvaluatePromo(ctx context.Context, input *PromoEvaluationInput) (*PromoEvaluation, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	db := config.GetDB().WithContext(ctx)
	promo, err := getPromoCodeByCode(db, input.Code, false)
	if err != nil {
		return nil, utils.Internal("evaluate promo", err)
	}
	if promo == nil {
		r := rejectPromo(normalizePromoCode(input.Code), "promo code not found")
		return &r, nil
	}
	usages, err := countUserPromoUsages(db, promo.ID, input.UserId)
	if err != nil {
		return nil, utils.Internal("evaluate promo", err)
	}
	r := EvaluatePromoSnapshot(promo, input.UserId, usages, input.OrderAmount, input.ItemIds, time.Now())
	return &r, nil
}

// applyPromoInTx locks the code, re-evaluates it against the locked row, records the one usage for
// orderId and bumps usedCount. Must run in the order's transaction.
func applyPromoInTx(tx *gorm.DB, code string, userId *int, orderId int, orderAmount decimal.Decimal, itemIds []int) (*PromoCodeUsage, error) {
	promo, err := getPromoCodeByCode(tx, code, true)
	if err != nil {
		return nil, err
	}
	if promo == nil {
		return nil, utils.NewValidationError("promo code not found")
	}
	usages, err := countUserPromoUsages(tx, promo.ID, userId)
	if err != nil {
		return nil, err
	}
	eval := EvaluatePromoSnapshot(promo, userId, usages, orderAmount, itemIds, time.Now())
	if !eval.Valid {
		return nil, utils.NewValidationError("%s", eval.Reason)
	}

	usage := PromoCodeUsage{
		PromoCodeId:    promo.ID,
		Code:           promo.Code,
		OrderId:        orderId,
		UserId:         userId,
		DiscountAmount: eval.DiscountAmount,
	}
	if err := tx.Create(&usage).Error; err != nil {
		if utils.IsDuplicateKeyErr(err) {
			return nil, utils.NewValidationError("a promo code is already applied to this order")
		}
		return nil, err
	}
	if err := tx.Model(&PromoCode{}).Where("id = ?", promo.ID).
		UpdateColumn("used_count", gorm.Expr("used_count + 1")).Error; err != nil {
		return nil, err
	}
	return &usage, nil
}
