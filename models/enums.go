package models

import (
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

func unmarshalEnum[T ~string](data []byte, values map[string]T, name string) (T, error) {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return "", errors.New(name + " must be string")
	}
	v, ok := values[strings.ToLower(strings.TrimSpace(str))]
	if !ok {
		return "", errors.New("invalid " + name)
	}
	return v, nil
}

// enumColumn is a native ENUM on MySQL; other dialects get a plain string column.
func enumColumn[T ~string](db *gorm.DB, values ...T) string {
	if db.Dialector.Name() != "mysql" {
		return "varchar(32)"
	}
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + string(v) + "'"
	}
	return "enum(" + strings.Join(quoted, ",") + ")"
}

type OrderChannel string

const (
	OrderChannelSales    OrderChannel = "Sales"
	OrderChannelPurchase OrderChannel = "Purchase"
	OrderChannelOnline   OrderChannel = "Online"
)

func (OrderChannel) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return enumColumn(db, OrderChannelSales, OrderChannelPurchase, OrderChannelOnline)
}

func (c *OrderChannel) UnmarshalJSON(data []byte) (err error) {
	*c, err = unmarshalEnum(data, map[string]OrderChannel{
		"sales":    OrderChannelSales,
		"purchase": OrderChannelPurchase,
		"online":   OrderChannelOnline,
	}, "order channel")
	return
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusConfirmed OrderStatus = "Confirmed"
	OrderStatusApproved  OrderStatus = "Approved"
	OrderStatusAccepted  OrderStatus = "Accepted"
	OrderStatusShipped   OrderStatus = "Shipped"
	OrderStatusDelivered OrderStatus = "Delivered"
	OrderStatusReceived  OrderStatus = "Received"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

func (OrderStatus) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return enumColumn(db, OrderStatusPending, OrderStatusConfirmed, OrderStatusApproved, OrderStatusAccepted,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusReceived, OrderStatusCancelled)
}

type OrderAction string

const (
	OrderActionConfirm OrderAction = "confirm"
	OrderActionApprove OrderAction = "approve"
	OrderActionAccept  OrderAction = "accept"
	OrderActionShip    OrderAction = "ship"
	OrderActionDeliver OrderAction = "deliver"
	OrderActionReceive OrderAction = "receive"
	OrderActionCancel  OrderAction = "cancel"
)

func ParseOrderAction(s string) (OrderAction, error) {
	actions := map[string]OrderAction{
		"confirm": OrderActionConfirm,
		"approve": OrderActionApprove,
		"accept":  OrderActionAccept,
		"ship":    OrderActionShip,
		"deliver": OrderActionDeliver,
		"receive": OrderActionReceive,
		"cancel":  OrderActionCancel,
	}
	a, ok := actions[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", errors.New("invalid order action")
	}
	return a, nil
}

func (a *OrderAction) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("order action must be string")
	}
	v, err := ParseOrderAction(str)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "Unpaid"
	PaymentStatusPaid     PaymentStatus = "Paid"
	PaymentStatusRefunded PaymentStatus = "Refunded"
)

func (PaymentStatus) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return enumColumn(db, PaymentStatusUnpaid, PaymentStatusPaid, PaymentStatusRefunded)
}

func (s *PaymentStatus) UnmarshalJSON(data []byte) (err error) {
	*s, err = unmarshalEnum(data, map[string]PaymentStatus{
		"unpaid":   PaymentStatusUnpaid,
		"paid":     PaymentStatusPaid,
		"refunded": PaymentStatusRefunded,
	}, "payment status")
	return
}

type PaymentMethod string

const (
	PaymentMethodCash            PaymentMethod = "Cash"
	PaymentMethodCashOnDelivery  PaymentMethod = "CashOnDelivery"
	PaymentMethodPrepaid         PaymentMethod = "Prepaid"
	PaymentMethodSupplierInvoice PaymentMethod = "SupplierInvoice"
)

func (PaymentMethod) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return enumColumn(db, PaymentMethodCash, PaymentMethodCashOnDelivery, PaymentMethodPrepaid, PaymentMethodSupplierInvoice)
}

func (m *PaymentMethod) UnmarshalJSON(data []byte) (err error) {
	*m, err = unmarshalEnum(data, map[string]PaymentMethod{
		"cash":            PaymentMethodCash,
		"cashondelivery":  PaymentMethodCashOnDelivery,
		"prepaid":         PaymentMethodPrepaid,
		"supplierinvoice": PaymentMethodSupplierInvoice,
	}, "payment method")
	return
}

type DiscountType string

const (
	DiscountTypePercentage  DiscountType = "Percentage"
	DiscountTypeFixedAmount DiscountType = "FixedAmount"
)

func (DiscountType) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return enumColumn(db, DiscountTypePercentage, DiscountTypeFixedAmount)
}

func (t *DiscountType) UnmarshalJSON(data []byte) (err error) {
	*t, err = unmarshalEnum(data, map[string]DiscountType{
		"percentage":  DiscountTypePercentage,
		"fixedamount": DiscountTypeFixedAmount,
	}, "discount type")
	return
}

type AssemblyStatus string

const (
	AssemblyStatusPending    AssemblyStatus = "Pending"
	AssemblyStatusInProgress AssemblyStatus = "InProgress"
	AssemblyStatusCompleted  AssemblyStatus = "Completed"
	AssemblyStatusCancelled  AssemblyStatus = "Cancelled"
)

func (AssemblyStatus) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return enumColumn(db, AssemblyStatusPending, AssemblyStatusInProgress, AssemblyStatusCompleted, AssemblyStatusCancelled)
}

type LocationType string

const (
	LocationTypeWarehouse LocationType = "Warehouse"
	LocationTypeStore     LocationType = "Store"
)

func (LocationType) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return enumColumn(db, LocationTypeWarehouse, LocationTypeStore)
}

// MovementReferenceType tags what caused an inventory movement.
type MovementReferenceType string

const (
	MovementReferenceAdjustment      MovementReferenceType = "ADJ"
	MovementReferenceSalesShipment   MovementReferenceType = "SO"
	MovementReferenceOnlineShipment  MovementReferenceType = "OO"
	MovementReferencePurchaseReceipt MovementReferenceType = "PO"
	MovementReferenceAssemblyConsume MovementReferenceType = "ASMC"
	MovementReferenceAssemblyProduce MovementReferenceType = "ASMP"
	MovementReferenceAssemblyPosSale MovementReferenceType = "ASMS"
)

type AuditAction string

const (
	AuditActionCreate     AuditAction = "C"
	AuditActionUpdate     AuditAction = "U"
	AuditActionTransition AuditAction = "T"
	AuditActionAdjust     AuditAction = "A"
)

func (AuditAction) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return enumColumn(db, AuditActionCreate, AuditActionUpdate, AuditActionTransition, AuditActionAdjust)
}

// Role names as issued by the identity provider.
const (
	RoleSuperAdmin       = "SuperAdmin"
	RoleAdmin            = "Admin"
	RoleStoreManager     = "StoreManager"
	RoleWarehouseManager = "WarehouseManager"
	RoleStaff            = "Staff"
	RoleCustomer         = "Customer"
)
