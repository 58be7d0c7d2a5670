package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rifaescolar/raffle-backend/pkg/enums"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	ddl := `
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
);`
	if err := db.Exec(ddl).Error; err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func seedRaffle(t *testing.T, repo *Repository, raffleID int64, total int) {
	t.Helper()
	if err := repo.Seed(context.Background(), raffleID, total); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func strPtr(s string) *string { return &s }

func TestCompareAndSetStatusReserve(t *testing.T) {
	t.Parallel()

	repo := NewRepository(newTestDB(t))
	seedRaffle(t, repo, 1, 10)
	ctx := context.Background()

	ok, err := repo.CompareAndSetStatus(ctx, 1, 5, enums.TicketStatusAvailable, enums.TicketStatusReserved, strPtr("TEMP-abc1234567"), time.Now())
	if err != nil {
		t.Fatalf("cas: %v", err)
	}
	if !ok {
		t.Fatal("expected first reservation to win")
	}

	row, err := repo.GetByNumber(ctx, 1, 5)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.Status != enums.TicketStatusReserved {
		t.Fatalf("status = %s, want reserved", row.Status)
	}
	if row.HolderRef == nil || *row.HolderRef != "TEMP-abc1234567" {
		t.Fatalf("holder_ref = %v, want TEMP-abc1234567", row.HolderRef)
	}
	if row.ReservedAt == nil {
		t.Fatal("reserved_at not set")
	}

	// Second attempt sees status=reserved, not available.
	ok, err = repo.CompareAndSetStatus(ctx, 1, 5, enums.TicketStatusAvailable, enums.TicketStatusReserved, strPtr("TEMP-other000000"), time.Now())
	if err != nil {
		t.Fatalf("cas: %v", err)
	}
	if ok {
		t.Fatal("second reservation must lose")
	}
	row, _ = repo.GetByNumber(ctx, 1, 5)
	if *row.HolderRef != "TEMP-abc1234567" {
		t.Fatalf("holder changed to %s", *row.HolderRef)
	}
}

func TestConcurrentReserveSingleWinner(t *testing.T) {
	t.Parallel()

	repo := NewRepository(newTestDB(t))
	seedRaffle(t, repo, 1, 100)
	ctx := context.Background()

	const attempts = 2
	wins := make(chan string, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		holder := "TEMP-holder" + string(rune('a'+i)) + "000000"
		wg.Add(1)
		go func(holder string) {
			defer wg.Done()
			ok, err := repo.CompareAndSetStatus(ctx, 1, 50, enums.TicketStatusAvailable, enums.TicketStatusReserved, &holder, time.Now())
			if err != nil {
				t.Errorf("cas: %v", err)
				return
			}
			if ok {
				wins <- holder
			}
		}(holder)
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("winners = %v, want exactly one", winners)
	}
	row, err := repo.GetByNumber(ctx, 1, 50)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.HolderRef == nil || *row.HolderRef != winners[0] {
		t.Fatalf("holder_ref = %v, want %s", row.HolderRef, winners[0])
	}
}

func TestConcurrentOverlappingSets(t *testing.T) {
	t.Parallel()

	repo := NewRepository(newTestDB(t))
	seedRaffle(t, repo, 1, 200)
	ctx := context.Background()

	sets := map[string][]int{
		"TEMP-set1000000": {100, 101, 102},
		"TEMP-set2000000": {101, 102, 103},
		"TEMP-set3000000": {102, 103, 104},
		"TEMP-set4000000": {100, 104, 105},
	}

	var wg sync.WaitGroup
	for holder, numbers := range sets {
		wg.Add(1)
		go func(holder string, numbers []int) {
			defer wg.Done()
			for _, n := range numbers {
				if _, err := repo.CompareAndSetStatus(ctx, 1, n, enums.TicketStatusAvailable, enums.TicketStatusReserved, &holder, time.Now()); err != nil {
					t.Errorf("cas %s #%d: %v", holder, n, err)
				}
			}
		}(holder, numbers)
	}
	wg.Wait()

	// Every contested number must have at most one holder, and every
	// reserved row's holder must be one of the contenders.
	for n := 100; n <= 105; n++ {
		row, err := repo.GetByNumber(ctx, 1, n)
		if err != nil {
			t.Fatalf("get #%d: %v", n, err)
		}
		if row.Status != enums.TicketStatusReserved {
			continue
		}
		if row.HolderRef == nil {
			t.Fatalf("#%d reserved without holder", n)
		}
		if _, known := sets[*row.HolderRef]; !known {
			t.Fatalf("#%d held by unknown %s", n, *row.HolderRef)
		}
	}
}

func TestRehomeHolder(t *testing.T) {
	t.Parallel()

	repo := NewRepository(newTestDB(t))
	seedRaffle(t, repo, 1, 10)
	ctx := context.Background()

	hold := "TEMP-abc1234567"
	if ok, _ := repo.CompareAndSetStatus(ctx, 1, 3, enums.TicketStatusAvailable, enums.TicketStatusReserved, &hold, time.Now()); !ok {
		t.Fatal("reserve failed")
	}

	ok, err := repo.RehomeHolder(ctx, 1, 3, hold, "PUR-def7654321")
	if err != nil {
		t.Fatalf("rehome: %v", err)
	}
	if !ok {
		t.Fatal("rehome must succeed for live hold")
	}
	row, _ := repo.GetByNumber(ctx, 1, 3)
	if *row.HolderRef != "PUR-def7654321" {
		t.Fatalf("holder = %s", *row.HolderRef)
	}
	if row.Status != enums.TicketStatusReserved {
		t.Fatalf("status = %s, want reserved", row.Status)
	}

	// A stale hold id cannot re-capture the row.
	ok, err = repo.RehomeHolder(ctx, 1, 3, hold, "PUR-attacker000")
	if err != nil {
		t.Fatalf("rehome: %v", err)
	}
	if ok {
		t.Fatal("stale hold must not re-home")
	}
}

func TestMarkSoldAndReleaseByHolder(t *testing.T) {
	t.Parallel()

	repo := NewRepository(newTestDB(t))
	seedRaffle(t, repo, 1, 10)
	ctx := context.Background()

	purchase := "PUR-abc1234567"
	for _, n := range []int{1, 2, 3} {
		if ok, _ := repo.CompareAndSetStatus(ctx, 1, n, enums.TicketStatusAvailable, enums.TicketStatusReserved, &purchase, time.Now()); !ok {
			t.Fatalf("reserve #%d failed", n)
		}
	}

	sold, err := repo.MarkSoldByHolder(ctx, purchase, time.Now())
	if err != nil {
		t.Fatalf("mark sold: %v", err)
	}
	if sold != 3 {
		t.Fatalf("sold = %d, want 3", sold)
	}
	row, _ := repo.GetByNumber(ctx, 1, 2)
	if row.Status != enums.TicketStatusSold || row.SoldAt == nil || row.ReservedAt != nil {
		t.Fatalf("unexpected row after sale: %+v", row)
	}

	// Marking again affects nothing: the rows are no longer reserved.
	sold, err = repo.MarkSoldByHolder(ctx, purchase, time.Now())
	if err != nil {
		t.Fatalf("mark sold: %v", err)
	}
	if sold != 0 {
		t.Fatalf("second mark sold = %d, want 0", sold)
	}

	released, err := repo.ReleaseByHolder(ctx, purchase, true)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released != 3 {
		t.Fatalf("released = %d, want 3", released)
	}
	row, _ = repo.GetByNumber(ctx, 1, 2)
	if row.Status != enums.TicketStatusAvailable || row.HolderRef != nil || row.SoldAt != nil {
		t.Fatalf("unexpected row after release: %+v", row)
	}
}

func TestReleaseExpiredOrphans(t *testing.T) {
	t.Parallel()

	repo := NewRepository(newTestDB(t))
	seedRaffle(t, repo, 1, 10)
	ctx := context.Background()

	old := time.Now().Add(-30 * time.Minute)
	fresh := time.Now()

	staleHold := "TEMP-stale00000"
	freshHold := "TEMP-fresh00000"
	rehomed := "PUR-rehomed000"
	if ok, _ := repo.CompareAndSetStatus(ctx, 1, 1, enums.TicketStatusAvailable, enums.TicketStatusReserved, &staleHold, old); !ok {
		t.Fatal("reserve stale failed")
	}
	if ok, _ := repo.CompareAndSetStatus(ctx, 1, 2, enums.TicketStatusAvailable, enums.TicketStatusReserved, &freshHold, fresh); !ok {
		t.Fatal("reserve fresh failed")
	}
	// Old hold that was converted to an order: the sweeper must not touch
	// it even past the cutoff, its purchase record owns the lifecycle.
	if ok, _ := repo.CompareAndSetStatus(ctx, 1, 3, enums.TicketStatusAvailable, enums.TicketStatusReserved, &rehomed, old); !ok {
		t.Fatal("reserve rehomed failed")
	}

	released, err := repo.ReleaseExpiredOrphans(ctx, time.Now().Add(-15*time.Minute))
	if err != nil {
		t.Fatalf("release orphans: %v", err)
	}
	if released != 1 {
		t.Fatalf("released = %d, want 1", released)
	}
	row, _ := repo.GetByNumber(ctx, 1, 1)
	if row.Status != enums.TicketStatusAvailable {
		t.Fatal("stale orphan not released")
	}
	row, _ = repo.GetByNumber(ctx, 1, 2)
	if row.Status != enums.TicketStatusReserved {
		t.Fatal("fresh hold must survive the sweep")
	}
	row, _ = repo.GetByNumber(ctx, 1, 3)
	if row.Status != enums.TicketStatusReserved {
		t.Fatal("re-homed hold must survive the sweep")
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	repo := NewRepository(newTestDB(t))
	seedRaffle(t, repo, 1, 10)
	ctx := context.Background()

	hold := "TEMP-abc1234567"
	purchase := "PUR-abc1234567"
	if ok, _ := repo.CompareAndSetStatus(ctx, 1, 1, enums.TicketStatusAvailable, enums.TicketStatusReserved, &hold, time.Now()); !ok {
		t.Fatal("reserve failed")
	}
	if ok, _ := repo.CompareAndSetStatus(ctx, 1, 2, enums.TicketStatusAvailable, enums.TicketStatusSold, &purchase, time.Now()); !ok {
		t.Fatal("sell failed")
	}

	stats, err := repo.Stats(ctx, 1)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 10 || stats.Available != 8 || stats.Reserved != 1 || stats.Sold != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}
