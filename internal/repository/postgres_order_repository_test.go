package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harshees/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) (*PostgresOrderRepository, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: "./migrations",
	}

	repo, err := NewPostgresOrderRepository(creds)
	require.NoError(t, err)

	err = repo.RunMigrations(creds)
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func newTestOrder(userID, number string) *domain.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Order{
		ID:          uuid.New(),
		OrderNumber: number,
		UserID:      userID,
		Items: []domain.LineItem{
			{ProductID: "tee", Name: "Tee", UnitPriceMinor: 149900, Size: "M", Quantity: 1},
		},
		ShippingAddress: domain.ShippingAddress{
			FullName: "Asha Rao",
			Phone:    "9999999999",
			Email:    "asha@example.com",
			Street:   "12 MG Road",
			City:     "Bengaluru",
			State:    "KA",
			Pincode:  "560001",
			Country:  domain.DefaultCountry,
		},
		PaymentMethod: domain.PaymentMethodUPI,
		Pricing: domain.Pricing{
			SubtotalMinor: 149900,
			ShippingMinor: 9900,
			TaxMinor:      26982,
			TotalMinor:    186782,
		},
		Currency:      "INR",
		OrderStatus:   domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		StatusHistory: []domain.StatusEntry{
			{Status: domain.OrderStatusPending, Timestamp: now, Note: "Order placed"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSaveOrder_RoundTrip(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	order := newTestOrder("user-123", "HF17000000000000001")
	require.NoError(t, repo.SaveOrder(ctx, order))

	fetched, err := repo.FindOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, fetched.OrderNumber)
	assert.Equal(t, order.Items, fetched.Items)
	assert.Equal(t, order.ShippingAddress, fetched.ShippingAddress)
	assert.Equal(t, order.Pricing, fetched.Pricing)
	assert.Equal(t, domain.OrderStatusPending, fetched.OrderStatus)
	assert.Equal(t, domain.PaymentMethodUPI, fetched.PaymentMethod)
	assert.Nil(t, fetched.DeliveredAt)
	require.Len(t, fetched.StatusHistory, 1)
	assert.Equal(t, "Order placed", fetched.StatusHistory[0].Note)
}

func TestSaveOrder_DuplicateOrderNumber(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, repo.SaveOrder(ctx, newTestOrder("u1", "HF1")))
	assert.ErrorIs(t, repo.SaveOrder(ctx, newTestOrder("u2", "HF1")), ErrDuplicateOrderNumber)
}

func TestSaveOrder_RejectsUnreconciledTotals(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	order := newTestOrder("u1", "HF2")
	order.Pricing.TotalMinor++
	assert.Error(t, repo.SaveOrder(context.Background(), order))
}

func TestFindOrder_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.FindOrder(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestUpdateOrder_AppendsHistoryAndDeliversOnce(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	order := newTestOrder("u1", "HF3")
	require.NoError(t, repo.SaveOrder(ctx, order))

	shipped := domain.OrderStatusShipped
	tracking := "TRK-1"
	updated, err := repo.UpdateOrder(ctx, order.ID, domain.OrderPatch{
		OrderStatus:    &shipped,
		TrackingNumber: &tracking,
		AppendHistory:  &domain.StatusEntry{Status: shipped, Timestamp: time.Now().UTC(), Note: "Order shipped by admin"},
	})
	require.NoError(t, err)
	assert.Equal(t, shipped, updated.OrderStatus)
	assert.Equal(t, "TRK-1", updated.TrackingNumber)
	assert.False(t, updated.IsDelivered)
	assert.Len(t, updated.StatusHistory, 2)

	delivered := domain.OrderStatusDelivered
	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	updated, err = repo.UpdateOrder(ctx, order.ID, domain.OrderPatch{
		OrderStatus:   &delivered,
		MarkDelivered: true,
		DeliveredAt:   first,
		AppendHistory: &domain.StatusEntry{Status: delivered, Timestamp: first},
	})
	require.NoError(t, err)
	require.NotNil(t, updated.DeliveredAt)
	assert.True(t, updated.DeliveredAt.Equal(first))

	updated, err = repo.UpdateOrder(ctx, order.ID, domain.OrderPatch{
		OrderStatus:   &delivered,
		MarkDelivered: true,
		DeliveredAt:   first.Add(time.Hour),
		AppendHistory: &domain.StatusEntry{Status: delivered, Timestamp: first.Add(time.Hour)},
	})
	require.NoError(t, err)
	assert.True(t, updated.DeliveredAt.Equal(first))
	assert.Len(t, updated.StatusHistory, 4)
	assert.Equal(t, "TRK-1", updated.TrackingNumber)
}

func TestUpdateOrder_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	reason := "x"
	_, err := repo.UpdateOrder(context.Background(), uuid.New(), domain.OrderPatch{CancelReason: &reason})
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestListOrders_PagesNewestFirst(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	userID := "user-list-test"
	var ids []uuid.UUID
	for i, number := range []string{"HF10", "HF11", "HF12"} {
		order := newTestOrder(userID, number)
		order.CreatedAt = order.CreatedAt.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.SaveOrder(ctx, order))
		ids = append(ids, order.ID)
	}
	require.NoError(t, repo.SaveOrder(ctx, newTestOrder("someone-else", "HF13")))

	page1, total, err := repo.ListOrders(ctx, userID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page1, 2)
	assert.Equal(t, ids[2], page1[0].ID)
	assert.Equal(t, ids[1], page1[1].ID)

	page2, _, err := repo.ListOrders(ctx, userID, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, ids[0], page2[0].ID)
}
