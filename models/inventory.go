package models

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventoryRecord is the on-hand quantity of one item at one location.
// Quantity - ReservedQuantity is what can still be promised.
type InventoryRecord struct {
	ID                int              `gorm:"primary_key" json:"id"`
	ItemId            int              `gorm:"not null;uniqueIndex:uniq_item_location" json:"item_id"`
	LocationId        int              `gorm:"not null;uniqueIndex:uniq_item_location;index" json:"location_id"`
	Quantity          decimal.Decimal  `gorm:"type:decimal(20,4);not null;default:0" json:"quantity"`
	ReservedQuantity  decimal.Decimal  `gorm:"type:decimal(20,4);not null;default:0" json:"reserved_quantity"`
	MinimumStockLevel *decimal.Decimal `gorm:"type:decimal(20,4)" json:"minimum_stock_level"`
	MaximumStockLevel *decimal.Decimal `gorm:"type:decimal(20,4)" json:"maximum_stock_level"`
	CreatedAt         time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (InventoryRecord) LocationScopeColumn() string { return "location_id" }
func (InventoryRecord) CustomerScopeColumn() string { return "" }

func (r InventoryRecord) Available() decimal.Decimal {
	return r.Quantity.Sub(r.ReservedQuantity)
}

func (r InventoryRecord) IsLowStock() bool {
	return r.MinimumStockLevel != nil && r.Quantity.LessThanOrEqual(*r.MinimumStockLevel)
}

type NewInventoryAdjustment struct {
	ItemId     int             `json:"item_id" binding:"required"`
	LocationId int             `json:"location_id" binding:"required"`
	Delta      decimal.Decimal `json:"delta"`
	Reason     string          `json:"reason" binding:"max=255"`
}

type InventoryRequirement struct {
	ItemId     int             `json:"item_id" binding:"required"`
	LocationId int             `json:"location_id" binding:"required"`
	Quantity   decimal.Decimal `json:"quantity"`
}

type SufficiencyResult struct {
	Sufficient bool             `json:"sufficient"`
	Shortages  []utils.Shortage `json:"shortages"`
}

type NewStockLevels struct {
	ItemId            int              `json:"item_id" binding:"required"`
	LocationId        int              `json:"location_id" binding:"required"`
	MinimumStockLevel *decimal.Decimal `json:"minimum_stock_level"`
	MaximumStockLevel *decimal.Decimal `json:"maximum_stock_level"`
}

// ledgerChange is one pending mutation of an inventory record. Delta moves on-hand quantity,
// Reserve moves the reserved quantity (positive holds stock, negative releases it).
type ledgerChange struct {
	ItemId     int
	LocationId int
	Delta      decimal.Decimal
	Reserve    decimal.Decimal
	// overrides the movement reference type of the batch
	Reference MovementReferenceType
}

type ledgerKey struct {
	ItemId     int
	LocationId int
}

// movementRef tags the movements written by one ledger application.
type movementRef struct {
	Type        MovementReferenceType
	Id          int
	Description string
}

// mergeLedgerChanges sums changes per (item, location) and returns them sorted by item then location,
// which is the order rows are locked in.
func mergeLedgerChanges(changes []ledgerChange) []ledgerChange {
	merged := make(map[ledgerKey]*ledgerChange)
	for _, c := range changes {
		k := ledgerKey{c.ItemId, c.LocationId}
		if m, ok := merged[k]; ok {
			m.Delta = m.Delta.Add(c.Delta)
			m.Reserve = m.Reserve.Add(c.Reserve)
			continue
		}
		cp := c
		merged[k] = &cp
	}
	result := make([]ledgerChange, 0, len(merged))
	for _, m := range merged {
		result = append(result, *m)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ItemId != result[j].ItemId {
			return result[i].ItemId < result[j].ItemId
		}
		return result[i].LocationId < result[j].LocationId
	})
	return result
}

// lockInventoryRecord reads the (item, location) row FOR UPDATE, creating a zero row when absent.
func lockInventoryRecord(tx *gorm.DB, itemId int, locationId int) (*InventoryRecord, error) {
	var record InventoryRecord
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("item_id = ? AND location_id = ?", itemId, locationId).
		Attrs(InventoryRecord{ItemId: itemId, LocationId: locationId, Quantity: decimal.Zero, ReservedQuantity: decimal.Zero}).
		FirstOrCreate(&record).Error
	if err != nil && utils.IsDuplicateKeyErr(err) {
		// lost the insert race; the winner's row is committed and lockable now
		record = InventoryRecord{}
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("item_id = ? AND location_id = ?", itemId, locationId).
			First(&record).Error
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// applyLedgerChanges locks every affected row, checks that no non-exempt item loses more availability
// than it has, then writes quantities and movements. Nothing is written when any row is short.
// Must run inside the caller's transaction.
func applyLedgerChanges(tx *gorm.DB, changes []ledgerChange, ref movementRef) ([]*InventoryRecord, error) {
	changes = mergeLedgerChanges(changes)
	if len(changes) == 0 {
		return nil, nil
	}

	itemIds := make([]int, 0, len(changes))
	for _, c := range changes {
		itemIds = append(itemIds, c.ItemId)
	}
	var items []*Item
	if err := tx.Where("id IN ?", utils.UniqueSlice(itemIds)).Find(&items).Error; err != nil {
		return nil, err
	}
	itemMap := make(map[int]*Item, len(items))
	for _, it := range items {
		itemMap[it.ID] = it
	}

	records := make([]*InventoryRecord, len(changes))
	var shortages []utils.Shortage
	for i, c := range changes {
		item, ok := itemMap[c.ItemId]
		if !ok {
			return nil, utils.NewValidationError("item %d not found", c.ItemId)
		}
		record, err := lockInventoryRecord(tx, c.ItemId, c.LocationId)
		if err != nil {
			return nil, err
		}
		records[i] = record

		if item.IsAlwaysAvailable {
			continue
		}
		reserve := c.Reserve
		if record.ReservedQuantity.Add(reserve).LessThan(decimal.Zero) {
			reserve = record.ReservedQuantity.Neg()
		}
		availabilityChange := c.Delta.Sub(reserve)
		newQuantity := record.Quantity.Add(c.Delta)
		if availabilityChange.LessThan(decimal.Zero) || newQuantity.LessThan(decimal.Zero) {
			available := record.Available()
			if available.Add(availabilityChange).LessThan(decimal.Zero) || newQuantity.LessThan(decimal.Zero) {
				shortages = append(shortages, utils.Shortage{
					ItemId:     c.ItemId,
					ItemName:   item.Name,
					LocationId: c.LocationId,
					Required:   availabilityChange.Neg(),
					Available:  available,
				})
			}
		}
	}
	if len(shortages) > 0 {
		return nil, utils.NewShortageError("insufficient stock", shortages)
	}

	actorId, _ := utils.GetUserIdFromContext(tx.Statement.Context)
	for i, c := range changes {
		record := records[i]
		item := itemMap[c.ItemId]

		newReserved := record.ReservedQuantity
		if !item.IsAlwaysAvailable {
			newReserved = newReserved.Add(c.Reserve)
			if newReserved.LessThan(decimal.Zero) {
				newReserved = decimal.Zero
			}
		}
		newQuantity := record.Quantity.Add(c.Delta)
		if newQuantity.Equal(record.Quantity) && newReserved.Equal(record.ReservedQuantity) {
			continue
		}
		if err := tx.Model(&InventoryRecord{}).Where("id = ?", record.ID).
			Updates(map[string]interface{}{
				"quantity":          newQuantity,
				"reserved_quantity": newReserved,
			}).Error; err != nil {
			return nil, err
		}
		record.Quantity = newQuantity
		record.ReservedQuantity = newReserved

		if c.Delta.IsZero() {
			continue
		}
		refType := ref.Type
		if c.Reference != "" {
			refType = c.Reference
		}
		movement := InventoryMovement{
			ItemId:        c.ItemId,
			LocationId:    c.LocationId,
			Delta:         c.Delta,
			QuantityAfter: newQuantity,
			ReferenceType: refType,
			ReferenceId:   ref.Id,
			Description:   ref.Description,
			ActorUserId:   actorId,
		}
		if err := tx.Create(&movement).Error; err != nil {
			return nil, err
		}
	}
	return records, nil
}

// AdjustInventory applies one manual delta in its own transaction.
func AdjustInventory(ctx context.Context, input *NewInventoryAdjustment) (*InventoryRecord, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.Delta.IsZero() {
		return nil, utils.NewValidationError("delta must not be zero")
	}
	if err := requireManager(ctx, input.LocationId); err != nil {
		return nil, err
	}
	if err := validateLocations(ctx, []int{input.LocationId}); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var record *InventoryRecord
	var before InventoryRecord
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := lockInventoryRecord(tx, input.ItemId, input.LocationId)
		if err != nil {
			return err
		}
		before = *existing
		records, err := applyLedgerChanges(tx, []ledgerChange{{
			ItemId:     input.ItemId,
			LocationId: input.LocationId,
			Delta:      input.Delta,
		}}, movementRef{Type: MovementReferenceAdjustment, Description: input.Reason})
		if err != nil {
			return err
		}
		record = records[0]
		return nil
	})
	if err != nil {
		return nil, utils.Internal("adjust inventory", err)
	}

	RecordAudit(ctx, "InventoryRecord", record.ID, AuditActionAdjust, before, record)
	return record, nil
}

// CheckInventorySufficiency is a pre-flight read: it takes no locks and the answer may be stale by the
// time a mutation runs. Enforcement happens in the mutating transaction.
func CheckInventorySufficiency(ctx context.Context, requirements []InventoryRequirement) (*SufficiencyResult, error) {
	changes := make([]ledgerChange, 0, len(requirements))
	for _, r := range requirements {
		if r.Quantity.LessThan(decimal.Zero) {
			return nil, utils.NewValidationError("required quantity must not be negative")
		}
		changes = append(changes, ledgerChange{ItemId: r.ItemId, LocationId: r.LocationId, Delta: r.Quantity.Neg()})
	}
	shortages, err := findShortages(config.GetDB().WithContext(ctx), changes)
	if err != nil {
		return nil, utils.Internal("check inventory sufficiency", err)
	}
	return &SufficiencyResult{Sufficient: len(shortages) == 0, Shortages: shortages}, nil
}

// findShortages evaluates deductions against current availability without locking.
func findShortages(db *gorm.DB, changes []ledgerChange) ([]utils.Shortage, error) {
	changes = mergeLedgerChanges(changes)
	if len(changes) == 0 {
		return nil, nil
	}
	itemIds := make([]int, 0, len(changes))
	locationIds := make([]int, 0, len(changes))
	for _, c := range changes {
		itemIds = append(itemIds, c.ItemId)
		locationIds = append(locationIds, c.LocationId)
	}
	var items []*Item
	if err := db.Where("id IN ?", utils.UniqueSlice(itemIds)).Find(&items).Error; err != nil {
		return nil, err
	}
	itemMap := make(map[int]*Item, len(items))
	for _, it := range items {
		itemMap[it.ID] = it
	}
	var records []*InventoryRecord
	if err := db.Where("item_id IN ? AND location_id IN ?", utils.UniqueSlice(itemIds), utils.UniqueSlice(locationIds)).
		Find(&records).Error; err != nil {
		return nil, err
	}
	recordMap := make(map[ledgerKey]*InventoryRecord, len(records))
	for _, r := range records {
		recordMap[ledgerKey{r.ItemId, r.LocationId}] = r
	}

	var shortages []utils.Shortage
	for _, c := range changes {
		item, ok := itemMap[c.ItemId]
		if !ok {
			return nil, utils.NewValidationError("item %d not found", c.ItemId)
		}
		if item.IsAlwaysAvailable {
			continue
		}
		required := c.Delta.Sub(c.Reserve).Neg()
		if !required.GreaterThan(decimal.Zero) {
			continue
		}
		available := decimal.Zero
		if r, ok := recordMap[ledgerKey{c.ItemId, c.LocationId}]; ok {
			available = r.Available()
		}
		if available.LessThan(required) {
			shortages = append(shortages, utils.Shortage{
				ItemId:     c.ItemId,
				ItemName:   item.Name,
				LocationId: c.LocationId,
				Required:   required,
				Available:  available,
			})
		}
	}
	return shortages, nil
}

// GetInventory returns the record, or a zero record when the pair has never moved.
func GetInventory(ctx context.Context, itemId int, locationId int) (*InventoryRecord, error) {
	if err := requireLocation(ctx, locationId); err != nil {
		return nil, err
	}
	db := config.GetDB()
	var record InventoryRecord
	err := db.WithContext(ctx).Where("item_id = ? AND location_id = ?", itemId, locationId).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &InventoryRecord{ItemId: itemId, LocationId: locationId}, nil
	}
	if err != nil {
		return nil, utils.Internal("get inventory", err)
	}
	return &record, nil
}

// ListLowStock lists records at or below their minimum level. Levels are advisory only.
func ListLowStock(ctx context.Context, locationId *int) ([]*InventoryRecord, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("minimum_stock_level IS NOT NULL AND quantity <= minimum_stock_level")
	if locationId != nil {
		if err := requireLocation(ctx, *locationId); err != nil {
			return nil, err
		}
		dbCtx = dbCtx.Where("location_id = ?", *locationId)
	}
	var records []*InventoryRecord
	if err := dbCtx.Order("location_id, item_id").Find(&records).Error; err != nil {
		return nil, utils.Internal("list low stock", err)
	}
	return records, nil
}

func SetStockLevels(ctx context.Context, input *NewStockLevels) (*InventoryRecord, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.MinimumStockLevel != nil && input.MinimumStockLevel.LessThan(decimal.Zero) {
		return nil, utils.NewValidationError("minimum stock level must not be negative")
	}
	if input.MaximumStockLevel != nil && input.MaximumStockLevel.LessThan(decimal.Zero) {
		return nil, utils.NewValidationError("maximum stock level must not be negative")
	}
	if input.MinimumStockLevel != nil && input.MaximumStockLevel != nil &&
		input.MinimumStockLevel.GreaterThan(*input.MaximumStockLevel) {
		return nil, utils.NewValidationError("minimum stock level exceeds maximum stock level")
	}
	if err := requireManager(ctx, input.LocationId); err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[Item](ctx, input.ItemId); err != nil {
		return nil, utils.NewValidationError("item not found")
	}
	if err := validateLocations(ctx, []int{input.LocationId}); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var record *InventoryRecord
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		record, err = lockInventoryRecord(tx, input.ItemId, input.LocationId)
		if err != nil {
			return err
		}
		record.MinimumStockLevel = input.MinimumStockLevel
		record.MaximumStockLevel = input.MaximumStockLevel
		return tx.Model(&InventoryRecord{}).Where("id = ?", record.ID).
			Updates(map[string]interface{}{
				"minimum_stock_level": input.MinimumStockLevel,
				"maximum_stock_level": input.MaximumStockLevel,
			}).Error
	})
	if err != nil {
		return nil, utils.Internal("set stock levels", err)
	}
	return record, nil
}
