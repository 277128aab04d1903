package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Order is a sales, purchase or online order. Lines are fixed once the order exists.
type Order struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	OrderNumber        string          `gorm:"size:30;not null;uniqueIndex" json:"order_number"`
	SequenceNo         int64           `gorm:"not null" json:"sequence_no"`
	Channel            OrderChannel    `gorm:"not null;index:idx_order_channel_status" json:"channel"`
	Status             OrderStatus     `gorm:"not null;index:idx_order_channel_status" json:"status"`
	LocationId         int             `gorm:"not null;index" json:"location_id"`
	CustomerUserId     *int            `gorm:"index" json:"customer_user_id"`
	GuestName          string          `gorm:"size:255" json:"guest_name"`
	GuestEmail         string          `gorm:"size:255" json:"guest_email"`
	GuestPhone         string          `gorm:"size:30" json:"guest_phone"`
	SupplierName       string          `gorm:"size:255" json:"supplier_name"`
	Subtotal           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	DiscountAmount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_amount"`
	TotalAmount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	PaymentStatus      PaymentStatus   `gorm:"not null;default:'Unpaid'" json:"payment_status"`
	PaymentMethod      PaymentMethod   `gorm:"not null" json:"payment_method"`
	PromoCode          string          `gorm:"size:50" json:"promo_code"`
	ShippingAddress    string          `gorm:"type:text" json:"shipping_address"`
	TrackingNumber     string          `gorm:"size:100" json:"tracking_number"`
	Notes              string          `gorm:"type:text" json:"notes"`
	AcceptedAt         *time.Time      `json:"accepted_at"`
	ShippedAt          *time.Time      `json:"shipped_at"`
	DeliveredAt        *time.Time      `json:"delivered_at"`
	CancelledAt        *time.Time      `json:"cancelled_at"`
	CancellationReason string          `gorm:"size:255" json:"cancellation_reason"`
	CreatedBy          int             `gorm:"index" json:"created_by"`
	Lines              []OrderLine     `gorm:"foreignKey:OrderId" json:"lines"`
	CreatedAt          time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) LocationScopeColumn() string { return "location_id" }
func (Order) CustomerScopeColumn() string { return "customer_user_id" }

func (o Order) IsGuest() bool {
	return o.CustomerUserId == nil
}

type OrderLine struct {
	ID         int             `gorm:"primary_key" json:"id"`
	OrderId    int             `gorm:"not null;index" json:"order_id"`
	ItemId     int             `gorm:"not null;index" json:"item_id"`
	LocationId int             `gorm:"not null" json:"location_id"`
	AssemblyId *int            `gorm:"index" json:"assembly_id"`
	Quantity   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	TotalPrice decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_price"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (l *OrderLine) BeforeUpdate(tx *gorm.DB) error {
	return errors.New("order lines cannot be changed")
}

type NewOrderLine struct {
	ItemId     int              `json:"item_id" binding:"required"`
	LocationId int              `json:"location_id"`
	Quantity   decimal.Decimal  `json:"quantity"`
	UnitPrice  *decimal.Decimal `json:"unit_price"`
}

type NewOrder struct {
	Channel         OrderChannel   `json:"channel" binding:"required"`
	LocationId      int            `json:"location_id" binding:"required"`
	CustomerUserId  *int           `json:"customer_user_id"`
	GuestName       string         `json:"guest_name" binding:"max=255"`
	GuestEmail      string         `json:"guest_email" binding:"max=255"`
	GuestPhone      string         `json:"guest_phone" binding:"max=30"`
	SupplierName    string         `json:"supplier_name" binding:"max=255"`
	PaymentMethod   *PaymentMethod `json:"payment_method"`
	PromoCode       *string        `json:"promo_code"`
	ShippingAddress string         `json:"shipping_address"`
	Notes           string         `json:"notes"`
	Lines           []NewOrderLine `json:"lines" binding:"required,min=1,dive"`
}

// pricedLines resolves defaults (line location, catalog price) and totals.
// Returns the lines and the subtotal.
func (input *NewOrder) pricedLines(items map[int]*Item) ([]OrderLine, decimal.Decimal) {
	var subtotal decimal.Decimal
	lines := make([]OrderLine, 0, len(input.Lines))
	for _, l := range input.Lines {
		locationId := l.LocationId
		if locationId == 0 {
			locationId = input.LocationId
		}
		unitPrice := decimal.Zero
		if l.UnitPrice != nil {
			unitPrice = *l.UnitPrice
		} else if it, ok := items[l.ItemId]; ok {
			unitPrice = it.UnitPrice
		}
		total := l.Quantity.Mul(unitPrice)
		subtotal = subtotal.Add(total)
		lines = append(lines, OrderLine{
			ItemId:     l.ItemId,
			LocationId: locationId,
			Quantity:   l.Quantity,
			UnitPrice:  unitPrice,
			TotalPrice: total,
		})
	}
	return lines, subtotal
}

func (input *NewOrder) itemIds() []int {
	ids := make([]int, 0, len(input.Lines))
	for _, l := range input.Lines {
		ids = append(ids, l.ItemId)
	}
	return utils.UniqueSlice(ids)
}

func (input *NewOrder) locationIds() []int {
	ids := []int{input.LocationId}
	for _, l := range input.Lines {
		if l.LocationId != 0 {
			ids = append(ids, l.LocationId)
		}
	}
	return utils.UniqueSlice(ids)
}

func (input *NewOrder) promoCode() string {
	if input.PromoCode == nil {
		return ""
	}
	return normalizePromoCode(*input.PromoCode)
}

// normalize applies the caller's scope: customers may only place online orders for themselves.
func (input *NewOrder) normalize(ctx context.Context) error {
	scope := ScopeFromContext(ctx)
	if scope.CustomerOnly {
		if input.Channel != OrderChannelOnline {
			return ErrForbidden
		}
		uid := scope.UserId
		input.CustomerUserId = &uid
		return nil
	}
	for _, id := range input.locationIds() {
		if !scope.CanAccessLocation(id) {
			return ErrForbidden
		}
	}
	return nil
}

// validate checks input without touching anything. It returns every problem it finds; the error is
// non-nil only when the store could not be read.
func (input *NewOrder) validate(ctx context.Context) ([]string, map[int]*Item, error) {
	var problems []string
	if err := utils.ValidateStruct(input); err != nil {
		if !utils.IsValidation(err) {
			return nil, nil, err
		}
		problems = append(problems, err.Error())
	}
	switch input.Channel {
	case OrderChannelSales, OrderChannelPurchase, OrderChannelOnline:
	default:
		problems = append(problems, "invalid order channel")
	}
	for i, l := range input.Lines {
		if !l.Quantity.GreaterThan(decimal.Zero) {
			problems = append(problems, fmt.Sprintf("line %d: quantity must be positive", i+1))
		}
		if l.UnitPrice != nil && l.UnitPrice.LessThan(decimal.Zero) {
			problems = append(problems, fmt.Sprintf("line %d: unit price must not be negative", i+1))
		}
	}

	items, err := GetItemsByIds(ctx, input.itemIds())
	if err != nil {
		return nil, nil, err
	}
	for _, id := range input.itemIds() {
		it, ok := items[id]
		if !ok {
			problems = append(problems, fmt.Sprintf("item %d not found", id))
			continue
		}
		if !it.Active() && input.Channel != OrderChannelPurchase {
			problems = append(problems, fmt.Sprintf("item %s is not active", it.Name))
		}
	}

	locations, err := utils.FetchModelsByIds[Location](ctx, input.locationIds())
	if err != nil {
		return nil, nil, err
	}
	found := make(map[int]*Location, len(locations))
	for _, l := range locations {
		found[l.ID] = l
	}
	for _, id := range input.locationIds() {
		l, ok := found[id]
		if !ok {
			problems = append(problems, fmt.Sprintf("location %d not found", id))
		} else if !l.Active() {
			problems = append(problems, fmt.Sprintf("location %s is not active", l.Name))
		}
	}

	if input.Channel == OrderChannelOnline && input.CustomerUserId == nil {
		problems = append(problems, input.validateGuest()...)
	}
	if input.Channel == OrderChannelPurchase {
		if strings.TrimSpace(input.SupplierName) == "" {
			problems = append(problems, "supplier name is required")
		}
		if input.promoCode() != "" {
			problems = append(problems, "promo codes do not apply to purchase orders")
		}
	}
	return problems, items, nil
}

func (input *NewOrder) validateGuest() []string {
	var problems []string
	if strings.TrimSpace(input.GuestName) == "" {
		problems = append(problems, "guest name is required")
	}
	if input.GuestEmail == "" && input.GuestPhone == "" {
		problems = append(problems, "guest email or phone is required")
	}
	if input.GuestEmail != "" && !utils.IsValidEmail(input.GuestEmail) {
		problems = append(problems, "guest email is invalid")
	}
	if input.GuestPhone != "" {
		if err := utils.ValidatePhoneNumber(input.GuestPhone, utils.CountryCode()); err != nil {
			problems = append(problems, "guest phone is invalid")
		}
	}
	return problems
}

func defaultPaymentMethod(channel OrderChannel) PaymentMethod {
	switch channel {
	case OrderChannelPurchase:
		return PaymentMethodSupplierInvoice
	case OrderChannelOnline:
		return PaymentMethodCashOnDelivery
	default:
		return PaymentMethodCash
	}
}

// CreateOrder stores a Pending order. When a promo code is given it is evaluated and recorded in the
// same transaction. A non-empty idempotencyKey makes retries of the same request return the first order.
func CreateOrder(ctx context.Context, input *NewOrder, idempotencyKey string) (*Order, error) {
	if err := input.normalize(ctx); err != nil {
		return nil, err
	}
	problems, items, err := input.validate(ctx)
	if err != nil {
		return nil, utils.Internal("create order", err)
	}
	if len(problems) > 0 {
		return nil, utils.NewValidationError("%s", strings.Join(problems, "; "))
	}

	lines, subtotal := input.pricedLines(items)
	paymentMethod := defaultPaymentMethod(input.Channel)
	if input.PaymentMethod != nil {
		paymentMethod = *input.PaymentMethod
	}
	paymentStatus := PaymentStatusUnpaid
	if paymentMethod == PaymentMethodPrepaid {
		paymentStatus = PaymentStatusPaid
	}
	actorId, _ := utils.GetUserIdFromContext(ctx)

	order := Order{
		Channel:         input.Channel,
		Status:          OrderStatusPending,
		LocationId:      input.LocationId,
		CustomerUserId:  input.CustomerUserId,
		GuestName:       strings.TrimSpace(input.GuestName),
		GuestEmail:      strings.TrimSpace(input.GuestEmail),
		SupplierName:    strings.TrimSpace(input.SupplierName),
		Subtotal:        subtotal,
		DiscountAmount:  decimal.Zero,
		TotalAmount:     subtotal,
		PaymentStatus:   paymentStatus,
		PaymentMethod:   paymentMethod,
		ShippingAddress: input.ShippingAddress,
		Notes:           input.Notes,
		CreatedBy:       actorId,
		Lines:           lines,
	}
	if input.GuestPhone != "" {
		order.GuestPhone, _ = utils.FormatPhoneNumber(input.GuestPhone, utils.CountryCode())
	}

	idemScope := fmt.Sprintf("order:create:%d", actorId)
	replayedId := 0

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if idempotencyKey != "" {
		replayedId, err = beginIdempotency(tx, idemScope, idempotencyKey)
		if err != nil {
			tx.Rollback()
			return nil, utils.Internal("create order", err)
		}
		if replayedId > 0 {
			tx.Rollback()
			return GetOrder(ctx, replayedId)
		}
	}

	order.OrderNumber, order.SequenceNo, err = nextOrderNumber(tx, orderPrefix(order.Channel, order.IsGuest()))
	if err != nil {
		tx.Rollback()
		return nil, utils.Internal("create order", err)
	}
	if err := tx.Create(&order).Error; err != nil {
		tx.Rollback()
		return nil, utils.Internal("create order", err)
	}

	if code := input.promoCode(); code != "" {
		usage, err := applyPromoInTx(tx, code, order.CustomerUserId, order.ID, order.Subtotal, input.itemIds())
		if err != nil {
			tx.Rollback()
			return nil, utils.Internal("create order", err)
		}
		if err := setOrderDiscount(tx, &order, usage); err != nil {
			tx.Rollback()
			return nil, utils.Internal("create order", err)
		}
	}

	if err := createOrderStatusHistory(tx, order.ID, "", OrderStatusPending, "create", input.Notes); err != nil {
		tx.Rollback()
		return nil, utils.Internal("create order", err)
	}
	if idempotencyKey != "" {
		if err := markIdempotencySucceeded(tx, idemScope, idempotencyKey, order.ID); err != nil {
			tx.Rollback()
			return nil, utils.Internal("create order", err)
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, utils.Internal("create order", err)
	}

	RecordAudit(ctx, "Order", order.ID, AuditActionCreate, nil, order)
	return &order, nil
}

func setOrderDiscount(tx *gorm.DB, order *Order, usage *PromoCodeUsage) error {
	order.PromoCode = usage.Code
	order.DiscountAmount = usage.DiscountAmount
	order.TotalAmount = order.Subtotal.Sub(usage.DiscountAmount)
	return tx.Model(&Order{}).Where("id = ?", order.ID).Updates(map[string]interface{}{
		"promo_code":      order.PromoCode,
		"discount_amount": order.DiscountAmount,
		"total_amount":    order.TotalAmount,
	}).Error
}

// ApplyPromoToOrder applies code to a Pending order that has no promo yet. userId defaults to the
// order's customer.
func ApplyPromoToOrder(ctx context.Context, orderId int, code string, userId *int) (*Order, error) {
	if strings.TrimSpace(code) == "" {
		return nil, utils.NewValidationError("promo code is required")
	}
	snapshot, err := GetOrder(ctx, orderId)
	if err != nil {
		return nil, err
	}
	scope := ScopeFromContext(ctx)
	if scope.CustomerOnly {
		uid := scope.UserId
		userId = &uid
	} else if !scope.CanAccessLocation(snapshot.LocationId) {
		return nil, ErrForbidden
	}
	if snapshot.Channel == OrderChannelPurchase {
		return nil, utils.NewValidationError("promo codes do not apply to purchase orders")
	}
	if snapshot.Status != OrderStatusPending {
		return nil, utils.NewValidationError("promo codes can only be applied to pending orders")
	}
	if snapshot.PromoCode != "" {
		return nil, utils.NewValidationError("a promo code is already applied to this order")
	}
	if userId == nil {
		userId = snapshot.CustomerUserId
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
		if order.PromoCode != "" {
			return utils.NewConflictError("order", order.ID, "no promo code", order.PromoCode)
		}
		itemIds := make([]int, 0, len(order.Lines))
		for _, l := range order.Lines {
			itemIds = append(itemIds, l.ItemId)
		}
		usage, err := applyPromoInTx(tx, code, userId, order.ID, order.Subtotal, itemIds)
		if err != nil {
			return err
		}
		return setOrderDiscount(tx, &order, usage)
	})
	if err != nil {
		return nil, utils.Internal("apply promo to order", err)
	}

	RecordAudit(ctx, "Order", order.ID, AuditActionUpdate, snapshot, order)
	return &order, nil
}

func GetOrder(ctx context.Context, id int) (*Order, error) {
	db := config.GetDB()
	var order Order
	if err := db.WithContext(ctx).Preload("Lines").First(&order, id).Error; err != nil {
		return nil, utils.Internal("get order", err)
	}
	return &order, nil
}

type OrderFilter struct {
	Channel    *OrderChannel
	Status     *OrderStatus
	LocationId *int
	Limit      int
}

// GetOrders lists orders visible to the caller, newest first.
func GetOrders(ctx context.Context, filter OrderFilter) ([]*Order, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Preload("Lines")
	if filter.Channel != nil {
		dbCtx = dbCtx.Where("channel = ?", *filter.Channel)
	}
	if filter.Status != nil {
		dbCtx = dbCtx.Where("status = ?", *filter.Status)
	}
	if filter.LocationId != nil {
		if err := requireLocation(ctx, *filter.LocationId); err != nil {
			return nil, err
		}
		dbCtx = dbCtx.Where("location_id = ?", *filter.LocationId)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var orders []*Order
	if err := dbCtx.Order("id DESC").Limit(limit).Find(&orders).Error; err != nil {
		return nil, utils.Internal("get orders", err)
	}
	return orders, nil
}
