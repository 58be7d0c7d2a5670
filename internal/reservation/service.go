package reservation

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/rifaescolar/raffle-backend/internal/inventory"
	"github.com/rifaescolar/raffle-backend/pkg/db/models"
	"github.com/rifaescolar/raffle-backend/pkg/enums"
	pkgerrors "github.com/rifaescolar/raffle-backend/pkg/errors"
	"github.com/rifaescolar/raffle-backend/pkg/eventlog"
	"github.com/rifaescolar/raffle-backend/pkg/logger"
	"github.com/rifaescolar/raffle-backend/pkg/shortid"
)

// MaxNumbersPerReservation caps how many numbers one hold may take.
const MaxNumbersPerReservation = 20

// Service places short-lived holds on ticket numbers. A hold either captures
// every requested number or none of them; partial wins are rolled back before
// the caller sees anything.
type Service struct {
	db         *gorm.DB
	inventory  *inventory.Repository
	events     *eventlog.Service
	logg       *logger.Logger
	simulation bool
}

func NewService(db *gorm.DB, inv *inventory.Repository, events *eventlog.Service, logg *logger.Logger, simulation bool) *Service {
	return &Service{db: db, inventory: inv, events: events, logg: logg, simulation: simulation}
}

// Result reports a successful hold.
type Result struct {
	ReservationID string    `json:"reservationId"`
	RaffleID      int64     `json:"raffleId"`
	Numbers       []int     `json:"numbers"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// ConflictDetails names the numbers that could not be taken.
type ConflictDetails struct {
	FailedNumbers []int `json:"failedNumbers"`
}

// Reserve attempts to hold every requested number for the raffle. Each number
// is claimed with one conditional write; the first failure releases whatever
// was already claimed and the whole call fails with a conflict naming the
// losing numbers.
func (s *Service) Reserve(ctx context.Context, raffle *models.Raffle, numbers []int, holdTimeout time.Duration) (*Result, error) {
	if err := validateNumbers(raffle, numbers); err != nil {
		return nil, err
	}

	now := time.Now()
	reservationID := shortid.New(inventory.HoldPrefix)
	ctx = s.logg.WithReservationID(ctx, reservationID)

	if s.simulation {
		s.logg.Info(ctx, "simulated reservation created")
		return &Result{
			ReservationID: reservationID,
			RaffleID:      raffle.ID,
			Numbers:       numbers,
			ExpiresAt:     now.Add(holdTimeout),
		}, nil
	}

	var claimed []int
	var failed []int
	for _, n := range numbers {
		ok, err := s.inventory.CompareAndSetStatus(ctx, raffle.ID, n, enums.TicketStatusAvailable, enums.TicketStatusReserved, &reservationID, now)
		if err != nil {
			s.rollback(ctx, reservationID)
			return nil, err
		}
		if !ok {
			failed = append(failed, n)
			break
		}
		claimed = append(claimed, n)
	}

	if len(failed) > 0 {
		s.rollback(ctx, reservationID)
		// Report every contested number, not just the first loser.
		for _, n := range numbers[len(claimed)+1:] {
			row, err := s.inventory.GetByNumber(ctx, raffle.ID, n)
			if err == nil && row.Status != enums.TicketStatusAvailable {
				failed = append(failed, n)
			}
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "some numbers are no longer available").
			WithDetails(ConflictDetails{FailedNumbers: failed})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.events.Emit(ctx, tx, eventlog.DomainEvent{
			EventType:     enums.EventReservationCreated,
			AggregateType: enums.AggregateReservation,
			AggregateID:   reservationID,
			Version:       1,
			Data: map[string]any{
				"raffleId": raffle.ID,
				"numbers":  numbers,
			},
		})
	})
	if err != nil {
		// The hold stands; the sweeper reaps it if the order never comes.
		s.logg.Error(ctx, "reservation event append failed", err)
	}

	s.logg.Info(ctx, "reservation created")
	return &Result{
		ReservationID: reservationID,
		RaffleID:      raffle.ID,
		Numbers:       numbers,
		ExpiresAt:     now.Add(holdTimeout),
	}, nil
}

// Verify reports which of the requested numbers are not currently available.
func (s *Service) Verify(ctx context.Context, raffle *models.Raffle, numbers []int) ([]int, error) {
	if err := validateNumbers(raffle, numbers); err != nil {
		return nil, err
	}
	if s.simulation {
		return nil, nil
	}
	var unavailable []int
	for _, n := range numbers {
		row, err := s.inventory.GetByNumber(ctx, raffle.ID, n)
		if err != nil {
			if pkgerrors.As(err) != nil && pkgerrors.As(err).Code() == pkgerrors.CodeNotFound {
				unavailable = append(unavailable, n)
				continue
			}
			return nil, err
		}
		if row.Status != enums.TicketStatusAvailable {
			unavailable = append(unavailable, n)
		}
	}
	return unavailable, nil
}

func (s *Service) rollback(ctx context.Context, reservationID string) {
	released, err := s.inventory.ReleaseByHolder(ctx, reservationID, false)
	if err != nil {
		s.logg.Error(ctx, "reservation rollback failed", err)
		return
	}
	if released > 0 {
		s.logg.Warn(ctx, "reservation rolled back")
	}
}

func validateNumbers(raffle *models.Raffle, numbers []int) error {
	if len(numbers) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one number is required")
	}
	if len(numbers) > MaxNumbersPerReservation {
		return pkgerrors.New(pkgerrors.CodeValidation, "too many numbers requested")
	}
	seen := make(map[int]struct{}, len(numbers))
	for _, n := range numbers {
		if n < 1 || n > raffle.TotalNumbers {
			return pkgerrors.New(pkgerrors.CodeValidation, "number out of range")
		}
		if _, dup := seen[n]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, "duplicate numbers in request")
		}
		seen[n] = struct{}{}
	}
	return nil
}
