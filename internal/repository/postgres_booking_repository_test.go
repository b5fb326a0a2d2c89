package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mmtext/booking-engine/internal/domain"
)

func skipIfNoIntegration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run")
	}
}

// getPostgresPool creates a PostgreSQL connection pool for testing
func getPostgresPool(t *testing.T) *pgxpool.Pool {
	skipIfNoIntegration(t)

	host := os.Getenv("TEST_POSTGRES_HOST")
	if host == "" {
		host = "localhost"
	}

	port := os.Getenv("TEST_POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}

	user := os.Getenv("TEST_POSTGRES_USER")
	if user == "" {
		user = "postgres"
	}

	password := os.Getenv("TEST_POSTGRES_PASSWORD")
	if password == "" {
		password = "postgres"
	}

	dbname := os.Getenv("TEST_POSTGRES_DB")
	if dbname == "" {
		dbname = "booking_test"
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		user, password, host, port, dbname)

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to create PostgreSQL pool: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("Failed to ping PostgreSQL: %v", err)
	}

	cleanupTestData(t, pool)

	return pool
}

func cleanupTestData(t *testing.T, pool *pgxpool.Pool) {
	ctx := context.Background()
	if _, err := pool.Exec(ctx, "DELETE FROM bookings WHERE booking_reference LIKE 'BK-TEST-%'"); err != nil {
		t.Logf("Warning: failed to clean up bookings: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM tickets WHERE ticket_id LIKE 'test-%'"); err != nil {
		t.Logf("Warning: failed to clean up tickets: %v", err)
	}
}

func createTestBooking(userID, ticketID string) *domain.Booking {
	return &domain.Booking{
		BookingReference: "BK-TEST-" + uuid.New().String(),
		UserID:           userID,
		TicketID:         ticketID,
		ConcurrencyTier:  domain.TierHigh,
		Status:           domain.BookingStatusQueued,
		Amount:           150.00,
	}
}

func TestPostgresBookingRepository_CreateAndGet(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresBookingRepository(pool)
	ctx := context.Background()

	booking := createTestBooking("test-user-1", "test-ticket-1")
	expires := time.Now().Add(time.Hour)
	booking.ExpiresAt = &expires

	if err := repo.Create(ctx, booking); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if booking.ID == 0 {
		t.Error("Create() should populate ID")
	}

	retrieved, err := repo.GetByReference(ctx, booking.BookingReference)
	if err != nil {
		t.Fatalf("GetByReference() error = %v", err)
	}

	if retrieved.UserID != booking.UserID {
		t.Errorf("UserID = %v, want %v", retrieved.UserID, booking.UserID)
	}
	if retrieved.Status != domain.BookingStatusQueued {
		t.Errorf("Status = %v, want %v", retrieved.Status, domain.BookingStatusQueued)
	}
	if retrieved.ConcurrencyTier != domain.TierHigh {
		t.Errorf("ConcurrencyTier = %v, want %v", retrieved.ConcurrencyTier, domain.TierHigh)
	}
}

func TestPostgresBookingRepository_GetByReference_NotFound(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresBookingRepository(pool)
	ctx := context.Background()

	_, err := repo.GetByReference(ctx, "BK-TEST-"+uuid.New().String())
	if err != domain.ErrBookingNotFound {
		t.Errorf("GetByReference() error = %v, want %v", err, domain.ErrBookingNotFound)
	}
}

func TestPostgresBookingRepository_GetByReferenceAndUser_WrongUser(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresBookingRepository(pool)
	ctx := context.Background()

	booking := createTestBooking("test-user-owner", "test-ticket-2")
	if err := repo.Create(ctx, booking); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	_, err := repo.GetByReferenceAndUser(ctx, booking.BookingReference, "test-user-other")
	if err != domain.ErrBookingNotFound {
		t.Errorf("GetByReferenceAndUser() error = %v, want %v", err, domain.ErrBookingNotFound)
	}
}

func TestPostgresBookingRepository_MarkPaymentPending(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresBookingRepository(pool)
	ctx := context.Background()

	booking := createTestBooking("test-user-3", "test-ticket-3")
	if err := repo.Create(ctx, booking); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	expires := time.Now().Add(15 * time.Minute)
	if err := repo.MarkPaymentPending(ctx, booking.BookingReference, "PAY-test", expires); err != nil {
		t.Fatalf("MarkPaymentPending() error = %v", err)
	}

	retrieved, err := repo.GetByReference(ctx, booking.BookingReference)
	if err != nil {
		t.Fatalf("GetByReference() error = %v", err)
	}

	if retrieved.Status != domain.BookingStatusPaymentPending {
		t.Errorf("Status = %v, want %v", retrieved.Status, domain.BookingStatusPaymentPending)
	}
	if retrieved.PaymentID != "PAY-test" {
		t.Errorf("PaymentID = %v, want PAY-test", retrieved.PaymentID)
	}

	// Second transition must fail: the row is no longer QUEUED
	err = repo.MarkPaymentPending(ctx, booking.BookingReference, "PAY-test-2", expires)
	if err != domain.ErrInvalidBookingStatus {
		t.Errorf("MarkPaymentPending() error = %v, want %v", err, domain.ErrInvalidBookingStatus)
	}
}

func TestPostgresBookingRepository_Confirm_Upsert(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresBookingRepository(pool)
	ctx := context.Background()

	// LOW/MEDIUM tier path: no prior row, Confirm inserts
	now := time.Now()
	booking := createTestBooking("test-user-4", "test-ticket-4")
	booking.ConcurrencyTier = domain.TierLow
	booking.PaymentID = "PAY-confirm-test"
	booking.PaidAt = &now

	if err := repo.Confirm(ctx, booking); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	retrieved, err := repo.GetByReference(ctx, booking.BookingReference)
	if err != nil {
		t.Fatalf("GetByReference() error = %v", err)
	}
	if retrieved.Status != domain.BookingStatusConfirmed {
		t.Errorf("Status = %v, want %v", retrieved.Status, domain.BookingStatusConfirmed)
	}
	if retrieved.PaidAt == nil {
		t.Error("PaidAt should not be nil")
	}

	// Replaying the confirmation must not error or duplicate
	if err := repo.Confirm(ctx, booking); err != nil {
		t.Fatalf("Confirm() replay error = %v", err)
	}
}

func TestPostgresBookingRepository_Cancel_NotFound(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresBookingRepository(pool)
	ctx := context.Background()

	err := repo.Cancel(ctx, "BK-TEST-"+uuid.New().String())
	if err != domain.ErrBookingNotFound {
		t.Errorf("Cancel() error = %v, want %v", err, domain.ErrBookingNotFound)
	}
}

func TestPostgresBookingRepository_ExpireOverdue(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresBookingRepository(pool)
	ctx := context.Background()

	booking := createTestBooking("test-user-5", "test-ticket-5")
	past := time.Now().Add(-time.Minute)
	booking.ExpiresAt = &past

	if err := repo.Create(ctx, booking); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	expired, err := repo.ExpireOverdue(ctx, time.Now(), 100)
	if err != nil {
		t.Fatalf("ExpireOverdue() error = %v", err)
	}
	if expired < 1 {
		t.Errorf("ExpireOverdue() = %d, want >= 1", expired)
	}

	retrieved, err := repo.GetByReference(ctx, booking.BookingReference)
	if err != nil {
		t.Fatalf("GetByReference() error = %v", err)
	}
	if retrieved.Status != domain.BookingStatusCancelled {
		t.Errorf("Status = %v, want %v", retrieved.Status, domain.BookingStatusCancelled)
	}
	if retrieved.CancelledAt == nil {
		t.Error("CancelledAt should not be nil")
	}
}
