// seed-dev creates a warehouse, a store, a few catalog items and opening stock, then prints bearer
// tokens for an admin, a store manager and a customer.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... API_SECRET=... go run ./cmd/seed-dev
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/models"
	"github.com/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type seedItem struct {
	name      string
	sku       string
	unit      string
	price     string
	always    bool
	warehouse string
	store     string
}

var seedItems = []seedItem{
	{name: "Flour", sku: "RAW-FLOUR", unit: "kg", price: "1.20", warehouse: "200", store: "20"},
	{name: "Sugar", sku: "RAW-SUGAR", unit: "kg", price: "0.90", warehouse: "150", store: "15"},
	{name: "Butter", sku: "RAW-BUTTER", unit: "kg", price: "6.50", warehouse: "40", store: "5"},
	{name: "Cake", sku: "FIN-CAKE", unit: "pcs", price: "18.00", warehouse: "0", store: "0"},
	{name: "Gift Wrapping", sku: "SRV-WRAP", unit: "pcs", price: "2.00", always: true},
}

func main() {
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx := models.WithAccessScope(context.Background(), models.SystemScope())

	warehouse, err := ensureLocation(db, "Central Warehouse", models.LocationTypeWarehouse)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create warehouse: %v\n", err)
		os.Exit(1)
	}
	store, err := ensureLocation(db, "Downtown Store", models.LocationTypeStore)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create store: %v\n", err)
		os.Exit(1)
	}

	for _, s := range seedItems {
		item := models.Item{Name: s.name, Sku: s.sku, Unit: s.unit, UnitPrice: decimal.RequireFromString(s.price), IsAlwaysAvailable: s.always, IsActive: utils.NewTrue()}
		if err := db.Where(models.Item{Sku: s.sku}).FirstOrCreate(&item).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create item %s: %v\n", s.sku, err)
			os.Exit(1)
		}
		for locationId, qty := range map[int]string{warehouse.ID: s.warehouse, store.ID: s.store} {
			if err := openingStock(ctx, item.ID, locationId, qty); err != nil {
				fmt.Fprintf(os.Stderr, "failed to stock %s: %v\n", s.sku, err)
				os.Exit(1)
			}
		}
		fmt.Printf("item id=%d sku=%s name=%q\n", item.ID, item.Sku, item.Name)
	}
	fmt.Printf("locations: warehouse=%d store=%d\n", warehouse.ID, store.ID)

	tokens := []struct {
		label    string
		userId   int
		name     string
		roles    []string
		location int
	}{
		{"admin", 1, "Seed Admin", []string{models.RoleAdmin}, 0},
		{"store manager", 2, "Seed Manager", []string{models.RoleStoreManager}, store.ID},
		{"customer", 1001, "Seed Customer", []string{models.RoleCustomer}, 0},
	}
	for _, t := range tokens {
		token, err := utils.JwtGenerate(t.userId, t.name, t.roles, t.location)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s token: %s\n", t.label, token)
	}
}

func ensureLocation(db *gorm.DB, name string, kind models.LocationType) (*models.Location, error) {
	loc := models.Location{Name: name, Type: kind, IsActive: utils.NewTrue()}
	if err := db.Where(models.Location{Name: name}).FirstOrCreate(&loc).Error; err != nil {
		return nil, err
	}
	return &loc, nil
}

// openingStock tops the record up to qty; reruns do not stack.
func openingStock(ctx context.Context, itemId int, locationId int, qty string) error {
	if qty == "" {
		return nil
	}
	target := decimal.RequireFromString(qty)
	current, err := models.GetInventory(ctx, itemId, locationId)
	if err != nil {
		return err
	}
	delta := target.Sub(current.Quantity)
	if delta.IsZero() {
		return nil
	}
	_, err = models.AdjustInventory(ctx, &models.NewInventoryAdjustment{
		ItemId:     itemId,
		LocationId: locationId,
		Delta:      delta,
		Reason:     "Opening stock (seed)",
	})
	return err
}
