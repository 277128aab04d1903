package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/models"
	"github.com/shopspring/decimal"
)

// ledger-negative-debug prints the movement running balance for one (item, location) and compares
// it with the stored inventory record, so you can see which movement took stock below zero or where
// the record drifted from its movements.
//
// Example:
//
//	go run ./cmd/ledger-negative-debug/ -item-id=137 -location-id=3
func main() {
	itemID := flag.Int("item-id", 0, "Required: item id")
	locationID := flag.Int("location-id", 0, "Required: location id")
	limit := flag.Int("limit", 500, "Max rows to print (0 = no limit)")
	flag.Parse()

	if *itemID <= 0 || *locationID <= 0 {
		fmt.Fprintln(os.Stderr, "--item-id and --location-id are required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	var itemName, locationName string
	_ = db.Raw("SELECT name FROM items WHERE id = ? LIMIT 1", *itemID).Scan(&itemName).Error
	_ = db.Raw("SELECT name FROM locations WHERE id = ? LIMIT 1", *locationID).Scan(&locationName).Error
	fmt.Printf("item_id=%d item_name=%q location_id=%d location_name=%q\n", *itemID, itemName, *locationID, locationName)

	type row struct {
		ID            int
		CreatedAt     time.Time
		RefType       string
		RefID         int
		Description   string
		Delta         decimal.Decimal
		QuantityAfter decimal.Decimal
		RunningQty    decimal.Decimal
	}

	limitSQL := ""
	if *limit > 0 {
		limitSQL = fmt.Sprintf(" LIMIT %d ", *limit)
	}

	sql := fmt.Sprintf(`
SELECT
  id,
  created_at,
  reference_type AS ref_type,
  reference_id   AS ref_id,
  description,
  delta,
  quantity_after,
  SUM(delta) OVER (
    PARTITION BY item_id, location_id
    ORDER BY id
    ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW
  ) AS running_qty
FROM inventory_movements
WHERE item_id = ?
  AND location_id = ?
ORDER BY id
%s
`, limitSQL)

	var rows []row
	if err := db.Raw(sql, *itemID, *locationID).Scan(&rows).Error; err != nil {
		fmt.Fprintf(os.Stderr, "query failed: %v\n", err)
		os.Exit(1)
	}
	if len(rows) == 0 {
		fmt.Println("no movements found")
	}

	fmt.Printf("rows=%d\n", len(rows))
	firstNegative := -1
	drifted := 0
	for i, r := range rows {
		marker := ""
		if !r.RunningQty.Equal(r.QuantityAfter) {
			marker = " DRIFT"
			drifted++
		}
		fmt.Printf("id=%d date=%s ref=%s/%d delta=%s after=%s running=%s desc=%q%s\n",
			r.ID,
			r.CreatedAt.Format(time.RFC3339),
			r.RefType,
			r.RefID,
			r.Delta.String(),
			r.QuantityAfter.String(),
			r.RunningQty.String(),
			r.Description,
			marker,
		)
		if firstNegative < 0 && r.RunningQty.IsNegative() {
			firstNegative = i
		}
	}
	if firstNegative >= 0 {
		r := rows[firstNegative]
		fmt.Printf("FIRST_NEGATIVE: id=%d running_qty=%s\n", r.ID, r.RunningQty.String())
	} else {
		fmt.Println("OK: no negative running balance detected in printed rows.")
	}
	if drifted > 0 {
		fmt.Printf("DRIFT: %d movements disagree with the running balance (movements missing or edited)\n", drifted)
	}

	var record models.InventoryRecord
	err := db.Where("item_id = ? AND location_id = ?", *itemID, *locationID).Limit(1).Find(&record).Error
	if err != nil {
		fmt.Fprintf(os.Stderr, "record lookup failed: %v\n", err)
		os.Exit(1)
	}
	if record.ID == 0 {
		fmt.Println("no inventory record")
		return
	}
	if *limit == 0 || len(rows) < *limit {
		running := decimal.Zero
		if len(rows) > 0 {
			running = rows[len(rows)-1].RunningQty
		}
		if running.Equal(record.Quantity) {
			fmt.Printf("RECORD_OK: quantity=%s reserved=%s\n", record.Quantity.String(), record.ReservedQuantity.String())
		} else {
			fmt.Printf("RECORD_MISMATCH: quantity=%s movements=%s reserved=%s\n", record.Quantity.String(), running.String(), record.ReservedQuantity.String())
		}
		return
	}
	fmt.Printf("record quantity=%s reserved=%s (rerun with -limit=0 to compare against all movements)\n", record.Quantity.String(), record.ReservedQuantity.String())
}
