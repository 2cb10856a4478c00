//go:build integration

package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/kart-checkout/internal/client"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/storage/memory"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
)

type noopProviders struct{}

func (noopProviders) MeterProvider() metric.MeterProvider   { return metricnoop.NewMeterProvider() }
func (noopProviders) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "kart",
				"POSTGRES_PASSWORD": "kart",
				"POSTGRES_DB":       "kart",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "5432")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://kart:kart@%s:%s/kart?sslmode=disable", host, port.Port())
}

func seed(t *testing.T, dsn string) {
	t.Helper()
	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, postgres.RunMigrations(ctx, pool))

	products := postgres.NewProductRepository(pool)
	require.NoError(t, products.Upsert(ctx, product.Product{
		ID: "tee", Name: "Tee", Price: decimal.NewFromInt(600), Category: "tops",
		Images:        []string{"tee.jpg"},
		StockQuantity: 10,
		Variants: []product.Variant{
			{Size: "M", Color: "Black", Stock: 5, SKU: "TEE-M"},
			{Size: "L", Color: "White", Price: decimal.NewFromInt(650), Stock: 5, SKU: "TEE-L"},
		},
	}))
	require.NoError(t, postgres.NewCouponRepository(pool).Upsert(ctx, coupon.Rule{
		Code: "SAVE10", Kind: coupon.KindPercentage, Value: decimal.NewFromInt(10), Active: true,
	}))
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestRun_CheckoutAgainstServer(t *testing.T) {
	dsn := startPostgres(t)
	seed(t, dsn)

	cfg := &Config{
		Addr:        freeAddr(t),
		DatabaseURL: dsn,
		RateLimit:   RateLimitConfig{Rate: 5, Burst: 20},
		CORS:        CORSConfig{Origins: []string{"*"}},
		Graceful:    GracefulConfig{ShutdownTimeout: 5 * time.Second},
		Kafka:       KafkaConfig{Topic: "order.placed"},
		Prefilter:   PrefilterConfig{Enabled: true, ExpectedCodes: 1000, FalsePositive: 0.01, Refresh: time.Second},
	}
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, zaptest.NewLogger(t), noopProviders{}, cfg) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(15 * time.Second):
			t.Error("server did not shut down")
		}
	})

	base := "http://" + cfg.Addr
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/readyz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 30*time.Second, 200*time.Millisecond)

	api, err := client.New(base)
	require.NoError(t, err)

	tee, err := api.Product(ctx, "tee")
	require.NoError(t, err)
	require.Len(t, tee.Variants, 2)

	_, err = api.ValidateDiscount(ctx, "NOSUCHCODE", decimal.NewFromInt(1000))
	var rej *checkout.DiscountRejectedError
	require.ErrorAs(t, err, &rej)

	store := cart.NewStore(memory.New(0))
	require.NoError(t, store.Open(ctx, cart.Guest))
	store.Add(ctx, cart.NewCandidate(tee, "", ""), 1)
	store.Add(ctx, cart.NewCandidate(tee, "L", "White"), 1)

	o := checkout.New(store, checkout.Deps{Discounts: api, Orders: api})
	require.NoError(t, o.SetForm(checkout.Address{
		Name: "Asha Rao", Email: "asha@example.com", Phone: "9876543210",
		Address: "12 MG Road", City: "Pune", State: "MH", PostalCode: "411001",
	}))
	require.NoError(t, o.SelectPayment(checkout.PaymentCOD))

	g, err := o.ApplyDiscount(ctx, "save10")
	require.NoError(t, err)
	assert.Equal(t, "130.00", g.Amount.StringFixed(2), "10% of the 1250 subtotal plus 50 COD")

	r, err := o.Submit(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, r.OrderID)
	assert.Equal(t, "1170.00", r.Order.GrandTotal.StringFixed(2))
	assert.True(t, store.Snapshot().IsEmpty())

	resp, err := http.Get(base + "/api/orders/" + r.OrderID)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
