package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/models"
	"github.com/mmdatafocus/retail_backend/utils"
)

// inventory-adjust applies one manual stock correction through the same ledger path the API uses,
// so the movement and audit entry are written as usual.
//
// Example:
//
//	go run ./cmd/inventory-adjust/ -item-id=137 -location-id=3 -delta=-2 -reason="count correction" \
//	  -dry-run=false -confirm=ADJUST
func main() {
	itemID := flag.Int("item-id", 0, "Required: item id")
	locationID := flag.Int("location-id", 0, "Required: location id")
	delta := flag.String("delta", "", "Required: signed quantity, e.g. 5 or -2.5")
	reason := flag.String("reason", "Manual adjustment (cli)", "Adjustment reason")
	dryRun := flag.Bool("dry-run", true, "Show the current record only (no writes)")
	confirm := flag.String("confirm", "", "Type ADJUST to proceed when dry-run=false")
	flag.Parse()

	if *itemID <= 0 || *locationID <= 0 || strings.TrimSpace(*delta) == "" {
		fmt.Fprintln(os.Stderr, "--item-id, --location-id and --delta are required")
		os.Exit(1)
	}
	amount, err := utils.ParseAmount(*delta)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --delta: %v\n", err)
		os.Exit(1)
	}
	if !*dryRun && strings.TrimSpace(*confirm) != "ADJUST" {
		fmt.Fprintln(os.Stderr, "set --confirm=ADJUST to proceed")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := models.WithAccessScope(context.Background(), models.SystemScope())
	ctx = utils.SetCorrelationIdInContext(ctx, "cli-inventory-adjust")

	current, err := models.GetInventory(ctx, *itemID, *locationID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lookup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("item_id=%d location_id=%d quantity=%s reserved=%s available=%s\n",
		*itemID, *locationID, current.Quantity.String(), current.ReservedQuantity.String(), current.Available().String())
	if *dryRun {
		fmt.Printf("dry run: would apply delta=%s (new quantity %s)\n", amount.String(), current.Quantity.Add(amount).String())
		return
	}

	record, err := models.AdjustInventory(ctx, &models.NewInventoryAdjustment{
		ItemId:     *itemID,
		LocationId: *locationID,
		Delta:      amount,
		Reason:     *reason,
	})
	if err != nil {
		if verr, ok := utils.AsValidation(err); ok {
			fmt.Fprintf(os.Stderr, "rejected: %s\n", verr.Error())
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "adjust failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("adjusted: quantity=%s reserved=%s\n", record.Quantity.String(), record.ReservedQuantity.String())
}
