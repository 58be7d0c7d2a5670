package purchase

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rifaescolar/raffle-backend/internal/inventory"
	"github.com/rifaescolar/raffle-backend/pkg/db/models"
	"github.com/rifaescolar/raffle-backend/pkg/enums"
	pkgerrors "github.com/rifaescolar/raffle-backend/pkg/errors"
	"github.com/rifaescolar/raffle-backend/pkg/eventlog"
	"github.com/rifaescolar/raffle-backend/pkg/logger"
	"github.com/rifaescolar/raffle-backend/pkg/shortid"
)

// Service turns a live reservation hold into a pending purchase. The hold's
// numbers are re-pointed to the purchase id one by one; a hold that expired
// mid-flight makes the whole creation fail and roll back.
type Service struct {
	db         *gorm.DB
	repo       *Repository
	inventory  *inventory.Repository
	events     *eventlog.Service
	logg       *logger.Logger
	simulation bool
}

func NewService(db *gorm.DB, repo *Repository, inv *inventory.Repository, events *eventlog.Service, logg *logger.Logger, simulation bool) *Service {
	return &Service{db: db, repo: repo, inventory: inv, events: events, logg: logg, simulation: simulation}
}

// CreateInput carries the buyer details attached to a reservation.
type CreateInput struct {
	ReservationID string
	BuyerName     string
	StudentName   string
	Division      string
	Course        string
	Email         string
	Phone         *string
}

// CreateResult reports the created purchase and its numbers. ReservationID
// names the hold the purchase was created from; reads after creation leave it
// empty since the numbers then belong to the purchase itself.
type CreateResult struct {
	Purchase      *models.Purchase `json:"purchase"`
	ReservationID string           `json:"reservationId,omitempty"`
	Numbers       []int            `json:"numbers"`
}

// Create converts the reservation into a pending purchase. The purchase row
// insert and the holder re-homes run in one transaction, so losing a single
// number to expiry undoes everything.
func (s *Service) Create(ctx context.Context, raffle *models.Raffle, input CreateInput) (*CreateResult, error) {
	if !inventory.IsHoldRef(input.ReservationID) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid reservation id")
	}

	purchaseID := shortid.New(inventory.PurchasePrefix)
	ctx = s.logg.WithPurchaseID(s.logg.WithReservationID(ctx, input.ReservationID), purchaseID)

	if s.simulation {
		s.logg.Info(ctx, "simulated purchase created")
		return &CreateResult{
			Purchase: &models.Purchase{
				ID:            purchaseID,
				RaffleID:      raffle.ID,
				BuyerName:     input.BuyerName,
				StudentName:   input.StudentName,
				Division:      input.Division,
				Course:        input.Course,
				Email:         input.Email,
				Phone:         input.Phone,
				PaymentStatus: enums.PaymentStatusPending,
			},
			ReservationID: input.ReservationID,
		}, nil
	}

	held, err := s.inventory.FindByHolder(ctx, input.ReservationID)
	if err != nil {
		return nil, err
	}
	if len(held) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "reservation expired or unknown")
	}

	numbers := make([]int, 0, len(held))
	for _, row := range held {
		numbers = append(numbers, row.Number)
	}
	total := raffle.PricePerNumber.Mul(decimal.NewFromInt(int64(len(numbers))))

	row := &models.Purchase{
		ID:            purchaseID,
		RaffleID:      raffle.ID,
		BuyerName:     input.BuyerName,
		StudentName:   input.StudentName,
		Division:      input.Division,
		Course:        input.Course,
		Email:         input.Email,
		Phone:         input.Phone,
		TotalAmount:   total,
		NumbersCount:  len(numbers),
		PaymentStatus: enums.PaymentStatusPending,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Insert(ctx, row); err != nil {
			return err
		}
		inv := s.inventory.WithTx(tx)
		for _, held := range held {
			ok, err := inv.RehomeHolder(ctx, raffle.ID, held.Number, input.ReservationID, purchaseID)
			if err != nil {
				return err
			}
			if !ok {
				// The hold was reaped (or re-reserved) between the read
				// above and this write. Abort; the tx undoes prior re-homes.
				return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation expired during order creation")
			}
		}
		return s.events.Emit(ctx, tx, eventlog.DomainEvent{
			EventType:     enums.EventPurchaseCreated,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   purchaseID,
			Version:       1,
			Data: map[string]any{
				"raffleId":      raffle.ID,
				"reservationId": input.ReservationID,
				"numbers":       numbers,
				"totalAmount":   total.String(),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(ctx, "purchase created")
	return &CreateResult{Purchase: row, ReservationID: input.ReservationID, Numbers: numbers}, nil
}

// Get loads a purchase with its numbers.
func (s *Service) Get(ctx context.Context, id string) (*CreateResult, error) {
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	held, err := s.inventory.FindByHolder(ctx, id)
	if err != nil {
		return nil, err
	}
	numbers := make([]int, 0, len(held))
	for _, ticket := range held {
		numbers = append(numbers, ticket.Number)
	}
	return &CreateResult{Purchase: row, Numbers: numbers}, nil
}
