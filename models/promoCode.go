package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PromoCode struct {
	ID                    int                  `gorm:"primary_key" json:"id"`
	Code                  string               `gorm:"size:50;not null;uniqueIndex" json:"code"`
	Description           string               `gorm:"size:255" json:"description"`
	DiscountType          DiscountType         `gorm:"not null" json:"discount_type"`
	DiscountValue         decimal.Decimal      `gorm:"type:decimal(20,4);not null" json:"discount_value"`
	StartsAt              time.Time            `gorm:"not null" json:"starts_at"`
	EndsAt                *time.Time           `json:"ends_at"`
	UsageLimit            *int                 `json:"usage_limit"`
	UsageLimitPerUser     *int                 `json:"usage_limit_per_user"`
	MinimumOrderAmount    *decimal.Decimal     `gorm:"type:decimal(20,4)" json:"minimum_order_amount"`
	MaximumDiscountAmount *decimal.Decimal     `gorm:"type:decimal(20,4)" json:"maximum_discount_amount"`
	IsActive              *bool                `gorm:"not null;default:true" json:"is_active"`
	UsedCount             int                  `gorm:"not null;default:0" json:"used_count"`
	Recipients            []PromoCodeRecipient `gorm:"foreignKey:PromoCodeId" json:"recipients"`
	Items                 []PromoCodeItem      `gorm:"foreignKey:PromoCodeId" json:"items"`
	CreatedAt             time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p PromoCode) Active() bool {
	return p.IsActive == nil || *p.IsActive
}

// PromoCodeUsage is written exactly once per order the code was applied to.
type PromoCodeUsage struct {
	ID             int             `gorm:"primary_key" json:"id"`
	PromoCodeId    int             `gorm:"not null;index:idx_usage_promo_user" json:"promo_code_id"`
	Code           string          `gorm:"size:50;not null" json:"code"`
	OrderId        int             `gorm:"not null;uniqueIndex" json:"order_id"`
	UserId         *int            `gorm:"index:idx_usage_promo_user" json:"user_id"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"discount_amount"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// PromoCodeRecipient is a member of the code's eligible-user set.
type PromoCodeRecipient struct {
	ID          int        `gorm:"primary_key" json:"id"`
	PromoCodeId int        `gorm:"not null;uniqueIndex:uniq_promo_recipient" json:"promo_code_id"`
	UserId      int        `gorm:"not null;uniqueIndex:uniq_promo_recipient" json:"user_id"`
	Email       string     `gorm:"size:255" json:"email"`
	Name        string     `gorm:"size:255" json:"name"`
	Notified    bool       `gorm:"not null;default:false;index" json:"notified"`
	NotifiedAt  *time.Time `json:"notified_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

type PromoCodeItem struct {
	ID          int `gorm:"primary_key" json:"id"`
	PromoCodeId int `gorm:"not null;uniqueIndex:uniq_promo_item" json:"promo_code_id"`
	ItemId      int `gorm:"not null;uniqueIndex:uniq_promo_item" json:"item_id"`
}

type NewPromoRecipient struct {
	UserId int    `json:"user_id" binding:"required"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

type NewPromoCode struct {
	Code                  string              `json:"code" binding:"required,max=50"`
	Description           string              `json:"description" binding:"max=255"`
	DiscountType          DiscountType        `json:"discount_type" binding:"required"`
	DiscountValue         decimal.Decimal     `json:"discount_value"`
	StartsAt              *time.Time          `json:"starts_at"`
	EndsAt                *time.Time          `json:"ends_at"`
	UsageLimit            *int                `json:"usage_limit"`
	UsageLimitPerUser     *int                `json:"usage_limit_per_user"`
	MinimumOrderAmount    *decimal.Decimal    `json:"minimum_order_amount"`
	MaximumDiscountAmount *decimal.Decimal    `json:"maximum_discount_amount"`
	ItemIds               []int               `json:"item_ids"`
	Recipients            []NewPromoRecipient `json:"recipients" binding:"dive"`
}

// PromoNotification is what a recipient is told about the code assigned to them.
type PromoNotification struct {
	Email     string          `json:"email"`
	Name      string          `json:"name"`
	Code      string          `json:"code"`
	Value     decimal.Decimal `json:"value"`
	Type      DiscountType    `json:"type"`
	ExpiresAt *time.Time      `json:"expires_at"`
}

// PromoNotifier delivers promo notifications. A false return leaves the recipient un-notified so a
// later pass can retry.
type PromoNotifier interface {
	SendPromoNotification(ctx context.Context, n PromoNotification) bool
}

func normalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (input *NewPromoCode) validate(ctx context.Context) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if normalizePromoCode(input.Code) == "" {
		return utils.NewValidationError("code is required")
	}
	switch input.DiscountType {
	case DiscountTypePercentage:
		if input.DiscountValue.LessThanOrEqual(decimal.Zero) || input.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
			return utils.NewValidationError("percentage discount must be between 0 and 100")
		}
	case DiscountTypeFixedAmount:
		if input.DiscountValue.LessThanOrEqual(decimal.Zero) {
			return utils.NewValidationError("fixed discount must be positive")
		}
	default:
		return utils.NewValidationError("invalid discount type")
	}
	if input.StartsAt != nil && input.EndsAt != nil && input.EndsAt.Before(*input.StartsAt) {
		return utils.NewValidationError("end date is before start date")
	}
	if input.UsageLimit != nil && *input.UsageLimit <= 0 {
		return utils.NewValidationError("usage limit must be positive")
	}
	if input.UsageLimitPerUser != nil && *input.UsageLimitPerUser <= 0 {
		return utils.NewValidationError("usage limit per user must be positive")
	}
	if input.MinimumOrderAmount != nil && input.MinimumOrderAmount.LessThan(decimal.Zero) {
		return utils.NewValidationError("minimum order amount must not be negative")
	}
	if input.MaximumDiscountAmount != nil && input.MaximumDiscountAmount.LessThan(decimal.Zero) {
		return utils.NewValidationError("maximum discount amount must not be negative")
	}
	for _, r := range input.Recipients {
		if r.Email != "" && !utils.IsValidEmail(r.Email) {
			return utils.NewValidationError("invalid recipient email %s", r.Email)
		}
	}
	if err := utils.ValidateResourcesId[Item](ctx, input.ItemIds); err != nil {
		return utils.NewValidationError("item not found")
	}
	return nil
}

// CreatePromoCode stores the code with its item and recipient sets in one transaction. Recipients are
// notified only after that commit.
func CreatePromoCode(ctx context.Context, input *NewPromoCode, notifier PromoNotifier) (*PromoCode, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	promo := PromoCode{
		Code:                  normalizePromoCode(input.Code),
		Description:           input.Description,
		DiscountType:          input.DiscountType,
		DiscountValue:         input.DiscountValue,
		StartsAt:              time.Now(),
		EndsAt:                input.EndsAt,
		UsageLimit:            input.UsageLimit,
		UsageLimitPerUser:     input.UsageLimitPerUser,
		MinimumOrderAmount:    input.MinimumOrderAmount,
		MaximumDiscountAmount: input.MaximumDiscountAmount,
		IsActive:              utils.NewTrue(),
	}
	if input.StartsAt != nil {
		promo.StartsAt = *input.StartsAt
	}
	for _, id := range utils.UniqueSlice(input.ItemIds) {
		promo.Items = append(promo.Items, PromoCodeItem{ItemId: id})
	}
	seen := make(map[int]bool)
	for _, r := range input.Recipients {
		if seen[r.UserId] {
			continue
		}
		seen[r.UserId] = true
		promo.Recipients = append(promo.Recipients, PromoCodeRecipient{UserId: r.UserId, Email: r.Email, Name: r.Name})
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&promo).Error
	})
	if err != nil {
		if utils.IsDuplicateKeyErr(err) {
			return nil, utils.NewValidationError("promo code %s already exists", promo.Code)
		}
		return nil, utils.Internal("create promo code", err)
	}

	RecordAudit(ctx, "PromoCode", promo.ID, AuditActionCreate, nil, promo)
	if notifier != nil && len(promo.Recipients) > 0 {
		recipients := make([]*PromoCodeRecipient, len(promo.Recipients))
		for i := range promo.Recipients {
			recipients[i] = &promo.Recipients[i]
		}
		go notifyRecipients(context.WithoutCancel(ctx), &promo, recipients, notifier)
	}
	return &promo, nil
}

func GetPromoCode(ctx context.Context, id int) (*PromoCode, error) {
	promo, err := utils.FetchModel[PromoCode](ctx, id, "Recipients", "Items")
	if err != nil {
		return nil, utils.Internal("get promo code", err)
	}
	return promo, nil
}

func getPromoCodeByCode(db *gorm.DB, code string, lock bool) (*PromoCode, error) {
	if lock {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var promo PromoCode
	err := db.Preload("Recipients").Preload("Items").
		Where("code = ?", normalizePromoCode(code)).First(&promo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

// DeactivatePromoCode soft-deletes the code. Usages already recorded stay.
func DeactivatePromoCode(ctx context.Context, id int) (*PromoCode, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	db := config.GetDB()
	var promo PromoCode
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&promo, id).Error; err != nil {
			return err
		}
		promo.IsActive = utils.NewFalse()
		return tx.Model(&PromoCode{}).Where("id = ?", id).UpdateColumn("is_active", false).Error
	})
	if err != nil {
		return nil, utils.Internal("deactivate promo code", err)
	}
	RecordAudit(ctx, "PromoCode", promo.ID, AuditActionUpdate, nil, promo)
	return &promo, nil
}

// AssignPromoCode adds users to the code's eligible-user set. Recipients already assigned are skipped.
// Notifications go out after commit; a failed notification only leaves the recipient un-notified.
func AssignPromoCode(ctx context.Context, promoId int, recipients []NewPromoRecipient, notifier PromoNotifier) ([]*PromoCodeRecipient, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, utils.NewValidationError("at least one recipient is required")
	}
	for _, r := range recipients {
		if err := utils.ValidateStruct(r); err != nil {
			return nil, err
		}
		if r.Email != "" && !utils.IsValidEmail(r.Email) {
			return nil, utils.NewValidationError("invalid recipient email %s", r.Email)
		}
	}

	db := config.GetDB()
	var promo PromoCode
	var created []*PromoCodeRecipient
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&promo, promoId).Error; err != nil {
			return err
		}
		if !promo.Active() {
			return utils.NewValidationError("promo code is inactive")
		}
		var existing []int
		if err := tx.Model(&PromoCodeRecipient{}).Where("promo_code_id = ?", promoId).
			Pluck("user_id", &existing).Error; err != nil {
			return err
		}
		assigned := make(map[int]bool, len(existing))
		for _, id := range existing {
			assigned[id] = true
		}
		for _, r := range recipients {
			if assigned[r.UserId] {
				continue
			}
			assigned[r.UserId] = true
			created = append(created, &PromoCodeRecipient{PromoCodeId: promoId, UserId: r.UserId, Email: r.Email, Name: r.Name})
		}
		if len(created) == 0 {
			return nil
		}
		return tx.Create(&created).Error
	})
	if err != nil {
		return nil, utils.Internal("assign promo code", err)
	}

	if notifier != nil && len(created) > 0 {
		go notifyRecipients(context.WithoutCancel(ctx), &promo, created, notifier)
	}
	return created, nil
}

func notifyRecipients(ctx context.Context, promo *PromoCode, recipients []*PromoCodeRecipient, notifier PromoNotifier) int {
	logger := config.GetLogger()
	db := config.GetDB()
	sent := 0
	for _, r := range recipients {
		if r.Email == "" {
			continue
		}
		ok := notifier.SendPromoNotification(ctx, PromoNotification{
			Email:     r.Email,
			Name:      r.Name,
			Code:      promo.Code,
			Value:     promo.DiscountValue,
			Type:      promo.DiscountType,
			ExpiresAt: promo.EndsAt,
		})
		if !ok {
			continue
		}
		now := time.Now()
		if err := db.WithContext(ctx).Model(&PromoCodeRecipient{}).Where("id = ?", r.ID).
			Updates(map[string]interface{}{"notified": true, "notified_at": now}).Error; err != nil {
			config.LogError(logger, "models/promoCode.go", "notifyRecipients", "mark notified", r.ID, err)
			continue
		}
		r.Notified = true
		r.NotifiedAt = &now
		sent++
	}
	return sent
}

// NotifyPendingRecipients retries notifications for recipients of active codes that were never
// notified. Returns how many were sent.
func NotifyPendingRecipients(ctx context.Context, notifier PromoNotifier, limit int) (int, error) {
	db := config.GetDB()
	var pending []*PromoCodeRecipient
	if err := db.WithContext(ctx).
		Joins("JOIN promo_codes ON promo_codes.id = promo_code_recipients.promo_code_id").
		Where("promo_code_recipients.notified = ? AND promo_code_recipients.email <> ''", false).
		Where("promo_codes.is_active = ? AND (promo_codes.ends_at IS NULL OR promo_codes.ends_at > ?)", true, time.Now()).
		Order("promo_code_recipients.id").Limit(limit).
		Find(&pending).Error; err != nil {
		return 0, err
	}
	byPromo := make(map[int][]*PromoCodeRecipient)
	for _, r := range pending {
		byPromo[r.PromoCodeId] = append(byPromo[r.PromoCodeId], r)
	}
	sent := 0
	for promoId, rs := range byPromo {
		var promo PromoCode
		if err := db.WithContext(ctx).First(&promo, promoId).Error; err != nil {
			return sent, err
		}
		sent += notifyRecipients(ctx, &promo, rs, notifier)
	}
	return sent, nil
}
