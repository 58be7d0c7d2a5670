package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rifaescolar/raffle-backend/internal/inventory"
	"github.com/rifaescolar/raffle-backend/internal/purchase"
	"github.com/rifaescolar/raffle-backend/pkg/db/models"
	"github.com/rifaescolar/raffle-backend/pkg/enums"
	"github.com/rifaescolar/raffle-backend/pkg/eventlog"
	"github.com/rifaescolar/raffle-backend/pkg/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:settlement_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	ddl := []string{`
CREATE TABLE IF NOT EXISTS ticket_numbers (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  raffle_id INTEGER NOT NULL,
  number INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'available',
  reserved_at DATETIME,
  sold_at DATETIME,
  holder_ref TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (raffle_id, number)
);`, `
CREATE TABLE IF NOT EXISTS purchases (
  id TEXT PRIMARY KEY,
  raffle_id INTEGER NOT NULL,
  buyer_name TEXT NOT NULL,
  student_name TEXT NOT NULL,
  division TEXT NOT NULL,
  course TEXT NOT NULL,
  email TEXT NOT NULL,
  phone TEXT,
  total_amount NUMERIC NOT NULL,
  numbers_count INTEGER NOT NULL,
  mp_preference_id TEXT,
  mp_payment_id TEXT,
  payment_status TEXT NOT NULL DEFAULT 'pending',
  payment_method TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS event_logs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME
);`}
	for _, stmt := range ddl {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create table: %v", err)
		}
	}
	return db
}

type fixture struct {
	svc       *Service
	inv       *inventory.Repository
	purchases *purchase.Repository
	db        *gorm.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	inv := inventory.NewRepository(db)
	purchases := purchase.NewRepository(db)
	events := eventlog.NewService(eventlog.NewRepository(db), nil)
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.ErrorLevel})
	return &fixture{
		svc:       NewService(db, purchases, inv, events, logg),
		inv:       inv,
		purchases: purchases,
		db:        db,
	}
}

// createPending seeds the raffle and materializes a pending purchase holding
// the given numbers, backdated by age.
func (f *fixture) createPending(t *testing.T, id string, age time.Duration, numbers ...int) {
	t.Helper()
	ctx := context.Background()
	createdAt := time.Now().Add(-age)
	for _, n := range numbers {
		holder := id
		ok, err := f.inv.CompareAndSetStatus(ctx, 1, n, enums.TicketStatusAvailable, enums.TicketStatusReserved, &holder, createdAt)
		if err != nil || !ok {
			t.Fatalf("reserve #%d: ok=%v err=%v", n, ok, err)
		}
	}
	row := &models.Purchase{
		ID: id, RaffleID: 1, BuyerName: "Ana", StudentName: "Lucas",
		Division: "B", Course: "5to", Email: "ana@example.com",
		TotalAmount:   decimal.NewFromInt(int64(2000 * len(numbers))),
		NumbersCount:  len(numbers),
		PaymentStatus: enums.PaymentStatusPending,
		CreatedAt:     createdAt,
	}
	if err := f.purchases.Insert(ctx, row); err != nil {
		t.Fatalf("insert purchase: %v", err)
	}
}

func TestConfirmMarksNumbersSold(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	if err := f.inv.Seed(ctx, 1, 100); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f.createPending(t, "PUR-abc1234567", 0, 5, 6)

	paymentID := "pay-1"
	row, err := f.svc.Confirm(ctx, ConfirmInput{PurchaseID: "PUR-abc1234567", PaymentID: &paymentID})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if row.PaymentStatus != enums.PaymentStatusApproved {
		t.Fatalf("status = %s", row.PaymentStatus)
	}
	if row.PaymentID == nil || *row.PaymentID != "pay-1" {
		t.Fatalf("payment id = %v", row.PaymentID)
	}
	for _, n := range []int{5, 6} {
		ticket, err := f.inv.GetByNumber(ctx, 1, n)
		if err != nil {
			t.Fatalf("get #%d: %v", n, err)
		}
		if ticket.Status != enums.TicketStatusSold {
			t.Fatalf("#%d status = %s", n, ticket.Status)
		}
		if ticket.HolderRef == nil || *ticket.HolderRef != "PUR-abc1234567" {
			t.Fatalf("#%d holder = %v", n, ticket.HolderRef)
		}
	}
}

func TestConfirmIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	if err := f.inv.Seed(ctx, 1, 100); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f.createPending(t, "PUR-abc1234567", 0, 7)

	first := "pay-1"
	if _, err := f.svc.Confirm(ctx, ConfirmInput{PurchaseID: "PUR-abc1234567", PaymentID: &first}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	second := "pay-2"
	row, err := f.svc.Confirm(ctx, ConfirmInput{PurchaseID: "PUR-abc1234567", PaymentID: &second})
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if *row.PaymentID != "pay-1" {
		t.Fatalf("payment id overwritten: %s", *row.PaymentID)
	}

	events, _ := eventlog.NewRepository(f.db).FindByAggregate(enums.AggregatePurchase, "PUR-abc1234567")
	confirmed := 0
	for _, e := range events {
		if e.EventType == enums.EventPaymentConfirmed {
			confirmed++
		}
	}
	if confirmed != 1 {
		t.Fatalf("payment_confirmed events = %d, want 1", confirmed)
	}
}

func TestCancelAfterConfirmIsNoop(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	if err := f.inv.Seed(ctx, 1, 100); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f.createPending(t, "PUR-abc1234567", 0, 8)

	if _, err := f.svc.Confirm(ctx, ConfirmInput{PurchaseID: "PUR-abc1234567"}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	row, released, err := f.svc.Cancel(ctx, "PUR-abc1234567", enums.PaymentStatusCancelled, "buyer request")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if row.PaymentStatus != enums.PaymentStatusApproved {
		t.Fatalf("status = %s, approval must stand", row.PaymentStatus)
	}
	if released != 0 {
		t.Fatalf("released = %d on a no-op cancel", released)
	}
	ticket, _ := f.inv.GetByNumber(ctx, 1, 8)
	if ticket.Status != enums.TicketStatusSold {
		t.Fatalf("#8 status = %s", ticket.Status)
	}
}

func TestCancelReleasesNumbers(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	if err := f.inv.Seed(ctx, 1, 100); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f.createPending(t, "PUR-abc1234567", 0, 9, 10)

	row, released, err := f.svc.Cancel(ctx, "PUR-abc1234567", enums.PaymentStatusRejected, "payment rejected")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if row.PaymentStatus != enums.PaymentStatusRejected {
		t.Fatalf("status = %s", row.PaymentStatus)
	}
	if released != 2 {
		t.Fatalf("released = %d, want 2", released)
	}
	for _, n := range []int{9, 10} {
		ticket, _ := f.inv.GetByNumber(ctx, 1, n)
		if ticket.Status != enums.TicketStatusAvailable || ticket.HolderRef != nil {
			t.Fatalf("#%d not released: %+v", n, ticket)
		}
	}
}

func TestCancelReportsOnlyRowsItFreed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	if err := f.inv.Seed(ctx, 1, 100); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f.createPending(t, "PUR-abc1234567", 0, 20, 21)

	// The rows are reclaimed before the cancel lands, so the purchase still
	// settles but frees nothing.
	if _, err := f.inv.ReleaseByHolder(ctx, "PUR-abc1234567", false); err != nil {
		t.Fatalf("release: %v", err)
	}
	row, released, err := f.svc.Cancel(ctx, "PUR-abc1234567", enums.PaymentStatusCancelled, "payment window expired")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if row.PaymentStatus != enums.PaymentStatusCancelled {
		t.Fatalf("status = %s", row.PaymentStatus)
	}
	if released != 0 {
		t.Fatalf("released = %d, want 0", released)
	}
}

func TestRefundReleasesSoldNumbers(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	if err := f.inv.Seed(ctx, 1, 100); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f.createPending(t, "PUR-abc1234567", 0, 30, 31)
	if _, err := f.svc.Confirm(ctx, ConfirmInput{PurchaseID: "PUR-abc1234567"}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	row, released, err := f.svc.Refund(ctx, "PUR-abc1234567", "refunded")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if row.PaymentStatus != enums.PaymentStatusCancelled {
		t.Fatalf("status = %s", row.PaymentStatus)
	}
	if released != 2 {
		t.Fatalf("released = %d, want 2", released)
	}
	for _, n := range []int{30, 31} {
		ticket, _ := f.inv.GetByNumber(ctx, 1, n)
		if ticket.Status != enums.TicketStatusAvailable || ticket.HolderRef != nil {
			t.Fatalf("#%d not returned to the pool: %+v", n, ticket)
		}
	}

	// A second refund notification finds nothing approved.
	_, released, err = f.svc.Refund(ctx, "PUR-abc1234567", "refunded")
	if err != nil {
		t.Fatalf("second refund: %v", err)
	}
	if released != 0 {
		t.Fatalf("second refund released = %d", released)
	}

	events, _ := eventlog.NewRepository(f.db).FindByAggregate(enums.AggregatePurchase, "PUR-abc1234567")
	refunded := 0
	for _, e := range events {
		if e.EventType == enums.EventPaymentRefunded {
			refunded++
		}
	}
	if refunded != 1 {
		t.Fatalf("payment_refunded events = %d, want 1", refunded)
	}
}

func TestRefundIgnoresPendingPurchase(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	if err := f.inv.Seed(ctx, 1, 100); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f.createPending(t, "PUR-abc1234567", 0, 40)

	row, released, err := f.svc.Refund(ctx, "PUR-abc1234567", "refunded")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if row.PaymentStatus != enums.PaymentStatusPending || released != 0 {
		t.Fatalf("pending purchase touched: status=%s released=%d", row.PaymentStatus, released)
	}
	ticket, _ := f.inv.GetByNumber(ctx, 1, 40)
	if ticket.Status != enums.TicketStatusReserved {
		t.Fatalf("#40 status = %s, hold must stand", ticket.Status)
	}
}

func TestSweepExpired(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	if err := f.inv.Seed(ctx, 1, 100); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// An expired pending purchase, a fresh pending one, and an orphan hold
	// past the cutoff.
	f.createPending(t, "PUR-old0000000", 30*time.Minute, 11, 12)
	f.createPending(t, "PUR-fresh00000", time.Minute, 13)
	staleHold := "TEMP-stale00000"
	if ok, _ := f.inv.CompareAndSetStatus(ctx, 1, 14, enums.TicketStatusAvailable, enums.TicketStatusReserved, &staleHold, time.Now().Add(-30*time.Minute)); !ok {
		t.Fatal("reserve stale hold failed")
	}

	result, err := f.svc.SweepExpired(ctx, 15*time.Minute)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.CancelledPurchases != 1 {
		t.Fatalf("cancelled = %d, want 1", result.CancelledPurchases)
	}
	if result.ReleasedNumbers != 3 {
		t.Fatalf("released = %d, want 3", result.ReleasedNumbers)
	}

	row, _ := f.purchases.FindByID(ctx, "PUR-old0000000")
	if row.PaymentStatus != enums.PaymentStatusCancelled {
		t.Fatalf("old purchase status = %s", row.PaymentStatus)
	}
	row, _ = f.purchases.FindByID(ctx, "PUR-fresh00000")
	if row.PaymentStatus != enums.PaymentStatusPending {
		t.Fatalf("fresh purchase status = %s", row.PaymentStatus)
	}
	for _, n := range []int{11, 12, 14} {
		ticket, _ := f.inv.GetByNumber(ctx, 1, n)
		if ticket.Status != enums.TicketStatusAvailable {
			t.Fatalf("#%d not released", n)
		}
	}
	ticket, _ := f.inv.GetByNumber(ctx, 1, 13)
	if ticket.Status != enums.TicketStatusReserved {
		t.Fatal("#13 must stay held")
	}

	events, _ := eventlog.NewRepository(f.db).FindByAggregate(enums.AggregateReservation, staleHold)
	if len(events) != 1 || events[0].EventType != enums.EventReservationExpired {
		t.Fatalf("expiry events = %+v", events)
	}
}

func TestSweepCountsOnlyFreedRows(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	if err := f.inv.Seed(ctx, 1, 100); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f.createPending(t, "PUR-old0000000", 30*time.Minute, 50, 51, 52)
	if _, err := f.inv.ReleaseByHolder(ctx, "PUR-old0000000", false); err != nil {
		t.Fatalf("release: %v", err)
	}

	result, err := f.svc.SweepExpired(ctx, 15*time.Minute)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.CancelledPurchases != 1 {
		t.Fatalf("cancelled = %d, want 1", result.CancelledPurchases)
	}
	if result.ReleasedNumbers != 0 {
		t.Fatalf("released = %d, want 0 for rows freed before the sweep", result.ReleasedNumbers)
	}
}

func TestSweepIsRepeatable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	if err := f.inv.Seed(ctx, 1, 100); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f.createPending(t, "PUR-old0000000", 30*time.Minute, 15)

	if _, err := f.svc.SweepExpired(ctx, 15*time.Minute); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	result, err := f.svc.SweepExpired(ctx, 15*time.Minute)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if result.CancelledPurchases != 0 || result.ReleasedNumbers != 0 {
		t.Fatalf("second sweep result = %+v, want zeroes", result)
	}
}
