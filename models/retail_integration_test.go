package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/models"
	"github.com/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRetailCoreIntegration runs the ledger, order, assembly and promo flows against a real MySQL
// and Redis. The containers are shared by the subtests.
func TestRetailCoreIntegration(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "retail_test")
	t.Setenv("INVENTORY_RESERVATIONS", "true")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	var isolation string
	require.NoError(t, config.GetDB().Raw("SELECT @@transaction_isolation").Scan(&isolation).Error)
	require.Equal(t, "READ-COMMITTED", isolation, "every pooled connection starts in READ-COMMITTED")

	ctx := models.WithAccessScope(context.Background(), models.SystemScope())
	ctx = utils.SetCorrelationIdInContext(ctx, "integration")

	store := createLocation(t, "Test Store", models.LocationTypeStore)

	t.Run("ship with insufficient stock leaves order and ledger untouched", func(t *testing.T) {
		item := createItem(t, "Stapler", "10", false)
		adjust(t, ctx, item.ID, store.ID, "3")

		order, err := models.CreateOrder(ctx, &models.NewOrder{
			Channel:    models.OrderChannelSales,
			LocationId: store.ID,
			Lines:      []models.NewOrderLine{{ItemId: item.ID, Quantity: decimal.NewFromInt(10)}},
		}, "")
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(order.OrderNumber, "SO-"), order.OrderNumber)

		_, err = models.TransitionOrder(ctx, order.ID, models.OrderActionConfirm, nil)
		require.NoError(t, err)

		_, err = models.TransitionOrder(ctx, order.ID, models.OrderActionShip, nil)
		require.Error(t, err)
		verr, ok := utils.AsValidation(err)
		require.True(t, ok, "want validation error, got %v", err)
		require.Len(t, verr.Shortages, 1)
		assert.True(t, verr.Shortages[0].Required.Equal(decimal.NewFromInt(10)))
		assert.True(t, verr.Shortages[0].Available.Equal(decimal.NewFromInt(3)))

		reloaded, err := models.GetOrder(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusConfirmed, reloaded.Status)
		assertQuantity(t, ctx, item.ID, store.ID, "3")
	})

	t.Run("ship and receive move the ledger", func(t *testing.T) {
		item := createItem(t, "Paper", "2", false)

		po, err := models.CreateOrder(ctx, &models.NewOrder{
			Channel:      models.OrderChannelPurchase,
			LocationId:   store.ID,
			SupplierName: "Paper Mill",
			Lines:        []models.NewOrderLine{{ItemId: item.ID, Quantity: decimal.NewFromInt(20)}},
		}, "")
		require.NoError(t, err)
		_, err = models.TransitionOrder(ctx, po.ID, models.OrderActionApprove, nil)
		require.NoError(t, err)
		_, err = models.TransitionOrder(ctx, po.ID, models.OrderActionReceive, nil)
		require.NoError(t, err)
		assertQuantity(t, ctx, item.ID, store.ID, "20")

		so, err := models.CreateOrder(ctx, &models.NewOrder{
			Channel:    models.OrderChannelSales,
			LocationId: store.ID,
			Lines:      []models.NewOrderLine{{ItemId: item.ID, Quantity: decimal.NewFromInt(8)}},
		}, "")
		require.NoError(t, err)
		_, err = models.TransitionOrder(ctx, so.ID, models.OrderActionConfirm, nil)
		require.NoError(t, err)
		shipped, err := models.TransitionOrder(ctx, so.ID, models.OrderActionShip, &models.TransitionOptions{TrackingNumber: "TRK-1"})
		require.NoError(t, err)
		assert.Equal(t, "TRK-1", shipped.TrackingNumber)
		assertQuantity(t, ctx, item.ID, store.ID, "12")

		// a second ship of the same order is an illegal move, not a second deduction
		_, err = models.TransitionOrder(ctx, so.ID, models.OrderActionShip, nil)
		require.True(t, utils.IsValidation(err), "got %v", err)
		assertQuantity(t, ctx, item.ID, store.ID, "12")

		movements, err := models.GetInventoryMovements(ctx, item.ID, store.ID)
		require.NoError(t, err)
		require.Len(t, movements, 2)

		history, err := models.GetOrderStatusHistory(ctx, so.ID)
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, "ship", history[2].Action)
	})

	t.Run("assembly consumes scaled materials and credits the finished item", func(t *testing.T) {
		flour := createItem(t, "Flour", "1", false)
		cake := createItem(t, "Cake", "18", false)
		adjust(t, ctx, flour.ID, store.ID, "10")

		assembly, err := models.CreateAssembly(ctx, &models.NewAssembly{
			Name:          "Cake",
			BuildQuantity: decimal.NewFromInt(3),
			LocationId:    store.ID,
			SalePrice:     decimal.NewFromInt(20),
			Materials: []models.NewBillOfMaterial{
				{RawItemId: flour.ID, RequiredQuantityPerBuild: decimal.NewFromInt(2)},
			},
		})
		require.NoError(t, err)

		shortages, err := models.ValidateAssembly(ctx, assembly.ID)
		require.NoError(t, err)
		assert.Empty(t, shortages)

		_, err = models.StartAssembly(ctx, assembly.ID)
		require.NoError(t, err)
		record, err := models.GetInventory(ctx, flour.ID, store.ID)
		require.NoError(t, err)
		assert.True(t, record.ReservedQuantity.Equal(decimal.NewFromInt(6)), "reserved %s", record.ReservedQuantity)

		completed, err := models.CompleteAssembly(ctx, assembly.ID)
		require.NoError(t, err)
		assert.Equal(t, models.AssemblyStatusCompleted, completed.Status)
		require.NotNil(t, completed.FinishedItemId)
		assert.Equal(t, cake.ID, *completed.FinishedItemId)

		record, err = models.GetInventory(ctx, flour.ID, store.ID)
		require.NoError(t, err)
		assert.True(t, record.Quantity.Equal(decimal.NewFromInt(4)), "flour %s", record.Quantity)
		assert.True(t, record.ReservedQuantity.IsZero(), "reserved %s", record.ReservedQuantity)
		assertQuantity(t, ctx, cake.ID, store.ID, "3")

		_, err = models.CompleteAssembly(ctx, assembly.ID)
		require.True(t, utils.IsValidation(err), "second completion must be rejected, got %v", err)
	})

	t.Run("assembly start fails as a whole when one material is short", func(t *testing.T) {
		sugar := createItem(t, "Sugar", "1", false)
		butter := createItem(t, "Butter", "1", false)
		adjust(t, ctx, sugar.ID, store.ID, "10")
		adjust(t, ctx, butter.ID, store.ID, "1")

		assembly, err := models.CreateAssembly(ctx, &models.NewAssembly{
			Name:          "Cookies",
			BuildQuantity: decimal.NewFromInt(2),
			LocationId:    store.ID,
			Materials: []models.NewBillOfMaterial{
				{RawItemId: sugar.ID, RequiredQuantityPerBuild: decimal.NewFromInt(1)},
				{RawItemId: butter.ID, RequiredQuantityPerBuild: decimal.NewFromInt(1)},
			},
		})
		require.NoError(t, err)

		_, err = models.StartAssembly(ctx, assembly.ID)
		verr, ok := utils.AsValidation(err)
		require.True(t, ok, "got %v", err)
		require.Len(t, verr.Shortages, 1)
		assert.Equal(t, butter.ID, verr.Shortages[0].ItemId)

		record, err := models.GetInventory(ctx, sugar.ID, store.ID)
		require.NoError(t, err)
		assert.True(t, record.ReservedQuantity.IsZero(), "nothing may be reserved on failure")
	})

	t.Run("promo with usage limit one is applied exactly once under concurrency", func(t *testing.T) {
		item := createItem(t, "Mug", "50", false)
		adjust(t, ctx, item.ID, store.ID, "100")
		_, err := models.CreatePromoCode(ctx, &models.NewPromoCode{
			Code:          "once",
			DiscountType:  models.DiscountTypePercentage,
			DiscountValue: decimal.NewFromInt(10),
			UsageLimit:    intPtr(1),
		}, nil)
		require.NoError(t, err)

		const n = 6
		orderIds := make([]int, 0, n)
		for i := 0; i < n; i++ {
			o, err := models.CreateOrder(ctx, &models.NewOrder{
				Channel:    models.OrderChannelSales,
				LocationId: store.ID,
				Lines:      []models.NewOrderLine{{ItemId: item.ID, Quantity: decimal.NewFromInt(1)}},
			}, "")
			require.NoError(t, err)
			orderIds = append(orderIds, o.ID)
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		applied, rejected := 0, 0
		for _, id := range orderIds {
			wg.Add(1)
			go func(orderId int) {
				defer wg.Done()
				_, err := models.ApplyPromoToOrder(ctx, orderId, "ONCE", nil)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					applied++
				case utils.IsValidation(err):
					rejected++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(id)
		}
		wg.Wait()
		assert.Equal(t, 1, applied)
		assert.Equal(t, n-1, rejected)

		db := config.GetDB()
		var usages int64
		require.NoError(t, db.Model(&models.PromoCodeUsage{}).Where("code = ?", "ONCE").Count(&usages).Error)
		assert.EqualValues(t, 1, usages)
		var promo models.PromoCode
		require.NoError(t, db.Where("code = ?", "ONCE").First(&promo).Error)
		assert.Equal(t, 1, promo.UsedCount)
	})

	t.Run("concurrent deductions never take stock below zero", func(t *testing.T) {
		item := createItem(t, "Tape", "1", false)
		adjust(t, ctx, item.ID, store.ID, "5")

		const n = 12
		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded := 0
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := models.AdjustInventory(ctx, &models.NewInventoryAdjustment{
					ItemId:     item.ID,
					LocationId: store.ID,
					Delta:      decimal.NewFromInt(-1),
					Reason:     "concurrent",
				})
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
					return
				}
				if !utils.IsValidation(err) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 5, succeeded)
		assertQuantity(t, ctx, item.ID, store.ID, "0")
	})

	t.Run("always-available items skip stock checks", func(t *testing.T) {
		wrap := createItem(t, "Gift Wrapping", "2", true)
		order, err := models.CreateOrder(ctx, &models.NewOrder{
			Channel:    models.OrderChannelSales,
			LocationId: store.ID,
			Lines:      []models.NewOrderLine{{ItemId: wrap.ID, Quantity: decimal.NewFromInt(4)}},
		}, "")
		require.NoError(t, err)
		_, err = models.TransitionOrder(ctx, order.ID, models.OrderActionConfirm, nil)
		require.NoError(t, err)
		_, err = models.TransitionOrder(ctx, order.ID, models.OrderActionShip, nil)
		require.NoError(t, err)
	})

	t.Run("idempotency key returns the first order", func(t *testing.T) {
		item := createItem(t, "Pen", "1", false)
		input := func() *models.NewOrder {
			return &models.NewOrder{
				Channel:    models.OrderChannelSales,
				LocationId: store.ID,
				Lines:      []models.NewOrderLine{{ItemId: item.ID, Quantity: decimal.NewFromInt(1)}},
			}
		}
		first, err := models.CreateOrder(ctx, input(), "retry-key-1")
		require.NoError(t, err)
		second, err := models.CreateOrder(ctx, input(), "retry-key-1")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, first.OrderNumber, second.OrderNumber)
	})

	t.Run("stale transition reports a conflict", func(t *testing.T) {
		item := createItem(t, "Clip", "1", false)
		order, err := models.CreateOrder(ctx, &models.NewOrder{
			Channel:    models.OrderChannelSales,
			LocationId: store.ID,
			Lines:      []models.NewOrderLine{{ItemId: item.ID, Quantity: decimal.NewFromInt(1)}},
		}, "")
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = models.TransitionOrder(ctx, order.ID, models.OrderActionConfirm, nil)
			}(i)
		}
		wg.Wait()

		ok := 0
		for _, err := range errs {
			if err == nil {
				ok++
				continue
			}
			var conflict *utils.ConflictError
			if !errors.As(err, &conflict) && !utils.IsValidation(err) {
				t.Fatalf("loser must see a conflict or an illegal move, got %v", err)
			}
		}
		assert.Equal(t, 1, ok)
	})
}

func intPtr(i int) *int {
	return &i
}

func createLocation(t *testing.T, name string, kind models.LocationType) *models.Location {
	t.Helper()
	loc := models.Location{Name: name, Type: kind, IsActive: utils.NewTrue()}
	require.NoError(t, config.GetDB().Create(&loc).Error)
	return &loc
}

func createItem(t *testing.T, name string, price string, alwaysAvailable bool) *models.Item {
	t.Helper()
	item := models.Item{
		Name:              name,
		Sku:               strings.ToUpper(strings.ReplaceAll(name, " ", "-")),
		Unit:              "pcs",
		UnitPrice:         decimal.RequireFromString(price),
		IsAlwaysAvailable: alwaysAvailable,
		IsActive:          utils.NewTrue(),
	}
	require.NoError(t, config.GetDB().Create(&item).Error)
	return &item
}

func adjust(t *testing.T, ctx context.Context, itemId int, locationId int, delta string) {
	t.Helper()
	_, err := models.AdjustInventory(ctx, &models.NewInventoryAdjustment{
		ItemId:     itemId,
		LocationId: locationId,
		Delta:      decimal.RequireFromString(delta),
		Reason:     "test stock",
	})
	require.NoError(t, err)
}

func assertQuantity(t *testing.T, ctx context.Context, itemId int, locationId int, want string) {
	t.Helper()
	record, err := models.GetInventory(ctx, itemId, locationId)
	require.NoError(t, err)
	if !record.Quantity.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("item %d at %d: quantity %s, want %s", itemId, locationId, record.Quantity, want)
	}
	if record.Quantity.IsNegative() {
		t.Fatalf("item %d at %d went negative", itemId, locationId)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("retail-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := dockerRun("exec", name, "redis-cli", "ping"); err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("retail-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=retail_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent"); err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
