package raffle

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rifaescolar/raffle-backend/internal/inventory"
	"github.com/rifaescolar/raffle-backend/pkg/db/models"
	"github.com/rifaescolar/raffle-backend/pkg/enums"
	"github.com/rifaescolar/raffle-backend/pkg/logger"
)

// Service exposes the active campaign and its number inventory to the API
// layer. In simulation mode it serves a synthetic campaign so the frontend
// can be exercised without a database.
type Service struct {
	repo       *Repository
	inventory  *inventory.Repository
	logg       *logger.Logger
	simulation bool
}

func NewService(repo *Repository, inv *inventory.Repository, logg *logger.Logger, simulation bool) *Service {
	return &Service{repo: repo, inventory: inv, logg: logg, simulation: simulation}
}

// simulatedRaffle mirrors the defaults the frontend expects when no backend
// campaign exists yet.
func simulatedRaffle() *models.Raffle {
	desc := "Rifa anual de la escuela"
	return &models.Raffle{
		ID:             1,
		Title:          "Rifa Escolar 2026",
		Description:    &desc,
		TotalNumbers:   1500,
		PricePerNumber: decimal.NewFromInt(2000),
		StartDate:      time.Now().AddDate(0, -1, 0),
		EndDate:        time.Now().AddDate(0, 2, 0),
		IsActive:       true,
	}
}

// Active returns the current active raffle.
func (s *Service) Active(ctx context.Context) (*models.Raffle, error) {
	if s.simulation {
		return simulatedRaffle(), nil
	}
	return s.repo.FindActive(ctx)
}

// StatsResponse aggregates the campaign with its inventory counters.
type StatsResponse struct {
	Raffle *models.Raffle   `json:"raffle"`
	Stats  *inventory.Stats `json:"stats"`
}

// Stats returns the active raffle together with per-status number counts.
func (s *Service) Stats(ctx context.Context) (*StatsResponse, error) {
	if s.simulation {
		raffle := simulatedRaffle()
		return &StatsResponse{
			Raffle: raffle,
			Stats: &inventory.Stats{
				Total:     int64(raffle.TotalNumbers),
				Available: int64(raffle.TotalNumbers),
			},
		}, nil
	}
	raffle, err := s.repo.FindActive(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.inventory.Stats(ctx, raffle.ID)
	if err != nil {
		return nil, err
	}
	return &StatsResponse{Raffle: raffle, Stats: stats}, nil
}

// Numbers lists every ticket number of the active raffle ordered by number.
func (s *Service) Numbers(ctx context.Context) ([]models.TicketNumber, error) {
	if s.simulation {
		raffle := simulatedRaffle()
		rows := make([]models.TicketNumber, 0, raffle.TotalNumbers)
		for n := 1; n <= raffle.TotalNumbers; n++ {
			rows = append(rows, models.TicketNumber{
				RaffleID: raffle.ID,
				Number:   n,
				Status:   enums.TicketStatusAvailable,
			})
		}
		return rows, nil
	}
	raffle, err := s.repo.FindActive(ctx)
	if err != nil {
		return nil, err
	}
	return s.inventory.ListByRaffle(ctx, raffle.ID)
}
