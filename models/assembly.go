package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Assembly is a build of BuildQuantity finished units from its bill of materials.
type Assembly struct {
	ID             int              `gorm:"primary_key" json:"id"`
	Name           string           `gorm:"size:255;not null" json:"name"`
	BuildQuantity  decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"build_quantity"`
	Unit           string           `gorm:"size:50" json:"unit"`
	Status         AssemblyStatus   `gorm:"not null;index" json:"status"`
	SalePrice      decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"sale_price"`
	LocationId     int              `gorm:"not null;index" json:"location_id"`
	FinishedItemId *int             `json:"finished_item_id"`
	SoldOrderId    *int             `gorm:"index" json:"sold_order_id"`
	Notes          string           `gorm:"type:text" json:"notes"`
	CreatedBy      int              `json:"created_by"`
	StartedAt      *time.Time       `json:"started_at"`
	CompletedAt    *time.Time       `json:"completed_at"`
	CancelledAt    *time.Time       `json:"cancelled_at"`
	Materials      []BillOfMaterial `gorm:"foreignKey:AssemblyId" json:"materials"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Assembly) LocationScopeColumn() string { return "location_id" }
func (Assembly) CustomerScopeColumn() string { return "" }

// BillOfMaterial is one raw input of an assembly, given per single build.
type BillOfMaterial struct {
	ID                       int             `gorm:"primary_key" json:"id"`
	AssemblyId               int             `gorm:"not null;index" json:"assembly_id"`
	RawItemId                int             `gorm:"not null" json:"raw_item_id"`
	LocationId               int             `gorm:"not null" json:"location_id"`
	RequiredQuantityPerBuild decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"required_quantity_per_build"`
	Unit                     string          `gorm:"size:50" json:"unit"`
}

type NewBillOfMaterial struct {
	RawItemId                int             `json:"raw_item_id" binding:"required"`
	LocationId               int             `json:"location_id"`
	RequiredQuantityPerBuild decimal.Decimal `json:"required_quantity_per_build"`
	Unit                     string          `json:"unit" binding:"max=50"`
}

type NewAssembly struct {
	Name          string              `json:"name" binding:"required,max=255"`
	BuildQuantity decimal.Decimal     `json:"build_quantity"`
	Unit          string              `json:"unit" binding:"max=50"`
	SalePrice     decimal.Decimal     `json:"sale_price"`
	LocationId    int                 `json:"location_id" binding:"required"`
	Notes         string              `json:"notes"`
	Materials     []NewBillOfMaterial `json:"materials" binding:"required,min=1,dive"`
}

type SellAssemblyInput struct {
	CustomerUserId *int           `json:"customer_user_id"`
	GuestName      string         `json:"guest_name" binding:"max=255"`
	PaymentMethod  *PaymentMethod `json:"payment_method"`
	Notes          string         `json:"notes"`
}

// RequiredQuantity is what one BOM line consumes for a whole build. Every shortage check and every
// deduction goes through it.
func RequiredQuantity(perBuild decimal.Decimal, buildQuantity decimal.Decimal) decimal.Decimal {
	return perBuild.Mul(buildQuantity)
}

// materialChanges returns one deduction per BOM line. reserved holds quantities this assembly
// already reserves per (item, location); they are released by the same change.
func (a *Assembly) materialChanges(reserved map[ledgerKey]decimal.Decimal, ref MovementReferenceType) []ledgerChange {
	changes := make([]ledgerChange, 0, len(a.Materials))
	for _, m := range a.Materials {
		changes = append(changes, ledgerChange{
			ItemId:     m.RawItemId,
			LocationId: m.LocationId,
			Delta:      RequiredQuantity(m.RequiredQuantityPerBuild, a.BuildQuantity).Neg(),
			Reference:  ref,
		})
	}
	for k, q := range reserved {
		changes = append(changes, ledgerChange{ItemId: k.ItemId, LocationId: k.LocationId, Reserve: q.Neg()})
	}
	return changes
}

// reservationChanges holds each line's required quantity without moving on-hand stock.
func (a *Assembly) reservationChanges() []ledgerChange {
	changes := make([]ledgerChange, 0, len(a.Materials))
	for _, m := range a.Materials {
		changes = append(changes, ledgerChange{
			ItemId:     m.RawItemId,
			LocationId: m.LocationId,
			Reserve:    RequiredQuantity(m.RequiredQuantityPerBuild, a.BuildQuantity),
		})
	}
	return changes
}

func (input *NewAssembly) validate(ctx context.Context) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.BuildQuantity.GreaterThan(decimal.Zero) {
		return utils.NewValidationError("build quantity must be positive")
	}
	if input.SalePrice.LessThan(decimal.Zero) {
		return utils.NewValidationError("sale price must not be negative")
	}
	itemIds := make([]int, 0, len(input.Materials))
	locationIds := []int{input.LocationId}
	seen := make(map[ledgerKey]bool)
	for i, m := range input.Materials {
		if !m.RequiredQuantityPerBuild.GreaterThan(decimal.Zero) {
			return utils.NewValidationError("material %d: required quantity must be positive", i+1)
		}
		loc := m.LocationId
		if loc == 0 {
			loc = input.LocationId
		}
		k := ledgerKey{m.RawItemId, loc}
		if seen[k] {
			return utils.NewValidationError("material %d: item %d is listed twice for location %d", i+1, m.RawItemId, loc)
		}
		seen[k] = true
		itemIds = append(itemIds, m.RawItemId)
		locationIds = append(locationIds, loc)
	}
	if err := utils.ValidateResourcesId[Item](ctx, itemIds); err != nil {
		return utils.NewValidationError("material item not found")
	}
	return validateLocations(ctx, locationIds)
}

func CreateAssembly(ctx context.Context, input *NewAssembly) (*Assembly, error) {
	if err := requireManager(ctx, input.LocationId); err != nil {
		return nil, err
	}
	if err := input.validate(ctx); err != nil {
		return nil, err
	}
	actorId, _ := utils.GetUserIdFromContext(ctx)
	assembly := Assembly{
		Name:          strings.TrimSpace(input.Name),
		BuildQuantity: input.BuildQuantity,
		Unit:          input.Unit,
		Status:        AssemblyStatusPending,
		SalePrice:     input.SalePrice,
		LocationId:    input.LocationId,
		Notes:         input.Notes,
		CreatedBy:     actorId,
	}
	for _, m := range input.Materials {
		loc := m.LocationId
		if loc == 0 {
			loc = input.LocationId
		}
		assembly.Materials = append(assembly.Materials, BillOfMaterial{
			RawItemId:                m.RawItemId,
			LocationId:               loc,
			RequiredQuantityPerBuild: m.RequiredQuantityPerBuild,
			Unit:                     m.Unit,
		})
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&assembly).Error; err != nil {
		return nil, utils.Internal("create assembly", err)
	}
	RecordAudit(ctx, "Assembly", assembly.ID, AuditActionCreate, nil, assembly)
	return &assembly, nil
}

func GetAssembly(ctx context.Context, id int) (*Assembly, error) {
	assembly, err := utils.FetchModel[Assembly](ctx, id, "Materials")
	if err != nil {
		return nil, utils.Internal("get assembly", err)
	}
	return assembly, nil
}

// ValidateAssembly lists the materials the build cannot currently cover. Stock the assembly itself
// has reserved counts as available to it.
func ValidateAssembly(ctx context.Context, id int) ([]utils.Shortage, error) {
	assembly, err := GetAssembly(ctx, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB().WithContext(ctx)
	reserved, err := activeReservations(db, assembly.ID)
	if err != nil {
		return nil, utils.Internal("validate assembly", err)
	}
	shortages, err := findShortages(db, assembly.materialChanges(reserved, ""))
	if err != nil {
		return nil, utils.Internal("validate assembly", err)
	}
	return shortages, nil
}

// lockAssembly re-reads the assembly under lock and fails with a conflict when its status is no
// longer the one the caller acted on.
func lockAssembly(tx *gorm.DB, id int, expected AssemblyStatus) (*Assembly, error) {
	var assembly Assembly
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Preload("Materials").First(&assembly, id).Error; err != nil {
		return nil, err
	}
	if assembly.Status != expected {
		return nil, utils.NewConflictError("assembly", id, string(expected), string(assembly.Status))
	}
	return &assembly, nil
}

func assemblySnapshot(ctx context.Context, id int, allowed ...AssemblyStatus) (*Assembly, error) {
	snapshot, err := GetAssembly(ctx, id)
	if err != nil {
		return nil, err
	}
	scope := ScopeFromContext(ctx)
	if !scope.IsStaff() || !scope.CanAccessLocation(snapshot.LocationId) {
		return nil, ErrForbidden
	}
	for _, s := range allowed {
		if snapshot.Status == s {
			return snapshot, nil
		}
	}
	return nil, utils.NewValidationError("assembly is %s", snapshot.Status)
}

// StartAssembly moves a Pending build to InProgress when every material is available. With
// reservations enabled the materials are held until the build completes or is cancelled.
func StartAssembly(ctx context.Context, id int) (*Assembly, error) {
	snapshot, err := assemblySnapshot(ctx, id, AssemblyStatusPending)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var assembly *Assembly
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockAssembly(tx, id, snapshot.Status)
		if err != nil {
			return err
		}
		assembly = locked
		if config.InventoryReservationsEnabled() {
			if _, err := applyLedgerChanges(tx, assembly.reservationChanges(), movementRef{Type: MovementReferenceAssemblyConsume, Id: id}); err != nil {
				return err
			}
			if err := createReservations(tx, assembly); err != nil {
				return err
			}
		} else {
			shortages, err := findShortages(tx, assembly.materialChanges(nil, ""))
			if err != nil {
				return err
			}
			if len(shortages) > 0 {
				return utils.NewShortageError("insufficient materials", shortages)
			}
		}
		now := time.Now()
		assembly.Status = AssemblyStatusInProgress
		assembly.StartedAt = &now
		return tx.Model(&Assembly{}).Where("id = ?", id).Updates(map[string]interface{}{
			"status":     AssemblyStatusInProgress,
			"started_at": now,
		}).Error
	})
	if err != nil {
		return nil, utils.Internal("start assembly", err)
	}
	RecordAudit(ctx, "Assembly", id, AuditActionTransition, snapshot, assembly)
	return assembly, nil
}

// CompleteAssembly consumes RequiredQuantity of every material and credits BuildQuantity of the
// catalog item named like the assembly, if there is one. Any short line aborts the whole completion.
func CompleteAssembly(ctx context.Context, id int) (*Assembly, error) {
	snapshot, err := assemblySnapshot(ctx, id, AssemblyStatusInProgress)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var assembly *Assembly
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockAssembly(tx, id, snapshot.Status)
		if err != nil {
			return err
		}
		assembly = locked
		reserved, err := activeReservations(tx, id)
		if err != nil {
			return err
		}
		changes := assembly.materialChanges(reserved, MovementReferenceAssemblyConsume)

		finished, err := findItemByName(tx, assembly.Name)
		if err != nil {
			return err
		}
		if finished != nil {
			changes = append(changes, ledgerChange{
				ItemId:     finished.ID,
				LocationId: assembly.LocationId,
				Delta:      assembly.BuildQuantity,
				Reference:  MovementReferenceAssemblyProduce,
			})
			assembly.FinishedItemId = &finished.ID
		}
		ref := movementRef{Type: MovementReferenceAssemblyConsume, Id: id, Description: assembly.Name}
		if _, err := applyLedgerChanges(tx, changes, ref); err != nil {
			return err
		}
		if err := releaseReservations(tx, id); err != nil {
			return err
		}

		now := time.Now()
		assembly.Status = AssemblyStatusCompleted
		assembly.CompletedAt = &now
		return tx.Model(&Assembly{}).Where("id = ?", id).Updates(map[string]interface{}{
			"status":           AssemblyStatusCompleted,
			"completed_at":     now,
			"finished_item_id": assembly.FinishedItemId,
		}).Error
	})
	if err != nil {
		return nil, utils.Internal("complete assembly", err)
	}
	if assembly.FinishedItemId != nil {
		InvalidateItemCache(*assembly.FinishedItemId)
	}
	RecordAudit(ctx, "Assembly", id, AuditActionTransition, snapshot, assembly)
	return assembly, nil
}

// CancelAssembly stops a Pending or InProgress build and releases anything it reserved.
func CancelAssembly(ctx context.Context, id int) (*Assembly, error) {
	snapshot, err := assemblySnapshot(ctx, id, AssemblyStatusPending, AssemblyStatusInProgress)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var assembly *Assembly
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockAssembly(tx, id, snapshot.Status)
		if err != nil {
			return err
		}
		assembly = locked
		reserved, err := activeReservations(tx, id)
		if err != nil {
			return err
		}
		if len(reserved) > 0 {
			changes := make([]ledgerChange, 0, len(reserved))
			for k, q := range reserved {
				changes = append(changes, ledgerChange{ItemId: k.ItemId, LocationId: k.LocationId, Reserve: q.Neg()})
			}
			if _, err := applyLedgerChanges(tx, changes, movementRef{Type: MovementReferenceAssemblyConsume, Id: id}); err != nil {
				return err
			}
			if err := releaseReservations(tx, id); err != nil {
				return err
			}
		}
		now := time.Now()
		assembly.Status = AssemblyStatusCancelled
		assembly.CancelledAt = &now
		return tx.Model(&Assembly{}).Where("id = ?", id).Updates(map[string]interface{}{
			"status":       AssemblyStatusCancelled,
			"cancelled_at": now,
		}).Error
	})
	if err != nil {
		return nil, utils.Internal("cancel assembly", err)
	}
	RecordAudit(ctx, "Assembly", id, AuditActionTransition, snapshot, assembly)
	return assembly, nil
}

// SellAssembly sells a completed build at the point of sale. Materials are re-checked and deducted
// with RequiredQuantity, and a delivered, paid sales order with one line for the assembly is created,
// all in one transaction. A build can be sold once.
func SellAssembly(ctx context.Context, id int, input *SellAssemblyInput) (*Order, error) {
	if input == nil {
		input = &SellAssemblyInput{}
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	snapshot, err := assemblySnapshot(ctx, id, AssemblyStatusCompleted)
	if err != nil {
		return nil, err
	}
	if snapshot.SoldOrderId != nil {
		return nil, utils.NewValidationError("assembly has already been sold")
	}
	paymentMethod := PaymentMethodCash
	if input.PaymentMethod != nil {
		paymentMethod = *input.PaymentMethod
	}

	db := config.GetDB()
	var order Order
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		assembly, err := lockAssembly(tx, id, snapshot.Status)
		if err != nil {
			return err
		}
		if assembly.SoldOrderId != nil {
			return utils.NewConflictError("assembly", id, "unsold", fmt.Sprintf("sold on order %d", *assembly.SoldOrderId))
		}
		itemId, err := soldItemId(tx, assembly)
		if err != nil {
			return err
		}
		ref := movementRef{Type: MovementReferenceAssemblyPosSale, Id: id, Description: assembly.Name}
		if _, err := applyLedgerChanges(tx, assembly.materialChanges(nil, ""), ref); err != nil {
			return err
		}

		assemblyId := assembly.ID
		now := time.Now()
		actorId, _ := utils.GetUserIdFromContext(ctx)
		lines := []OrderLine{{
			ItemId:     itemId,
			LocationId: assembly.LocationId,
			AssemblyId: &assemblyId,
			Quantity:   decimal.NewFromInt(1),
			UnitPrice:  assembly.SalePrice,
			TotalPrice: assembly.SalePrice,
		}}
		order = Order{
			Channel:        OrderChannelSales,
			Status:         OrderStatusDelivered,
			LocationId:     assembly.LocationId,
			CustomerUserId: input.CustomerUserId,
			GuestName:      strings.TrimSpace(input.GuestName),
			Subtotal:       orderLinesTotal(lines),
			DiscountAmount: decimal.Zero,
			TotalAmount:    orderLinesTotal(lines),
			PaymentStatus:  PaymentStatusPaid,
			PaymentMethod:  paymentMethod,
			Notes:          input.Notes,
			ShippedAt:      &now,
			DeliveredAt:    &now,
			CreatedBy:      actorId,
			Lines:          lines,
		}
		order.OrderNumber, order.SequenceNo, err = nextOrderNumber(tx, OrderPrefixSales)
		if err != nil {
			return err
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		if err := createOrderStatusHistory(tx, order.ID, "", OrderStatusDelivered, "sell", "point of sale: "+assembly.Name); err != nil {
			return err
		}
		return tx.Model(&Assembly{}).Where("id = ?", id).UpdateColumn("sold_order_id", order.ID).Error
	})
	if err != nil {
		return nil, utils.Internal("sell assembly", err)
	}
	RecordAudit(ctx, "Order", order.ID, AuditActionCreate, nil, order)
	return &order, nil
}

// soldItemId is the catalog item a sold build is recorded under: the one credited on completion, or
// the item named like the assembly when none was.
func soldItemId(tx *gorm.DB, assembly *Assembly) (int, error) {
	if assembly.FinishedItemId != nil {
		return *assembly.FinishedItemId, nil
	}
	finished, err := findItemByName(tx, assembly.Name)
	if err != nil {
		return 0, err
	}
	if finished == nil {
		return 0, utils.NewValidationError("no catalog item named %q to sell the assembly as", assembly.Name)
	}
	return finished.ID, nil
}
