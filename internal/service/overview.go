package service

import (
	"context"
	"math"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
)

// FleetReader lists the vehicles of the latest snapshot.
type FleetReader interface {
	Search(query string) []domain.Vehicle
}

// Overview is the dashboard summary.
type Overview struct {
	TotalGMV       int
	PendingOrders  int
	ActiveVehicles int // Status other than OFFLINE
	AvgWallet      int
	TotalOrders    int
	TotalVehicles  int
}

// OverviewService computes the dashboard summary.
type OverviewService struct {
	orderRepo repository.OrderRepository
	fleet     FleetReader
}

// NewOverviewService creates a new OverviewService.
func NewOverviewService(orderRepo repository.OrderRepository, fleet FleetReader) *OverviewService {
	return &OverviewService{
		orderRepo: orderRepo,
		fleet:     fleet,
	}
}

// Overview sums every order, cancelled ones included, and the latest fleet.
func (s *OverviewService) Overview(ctx context.Context) (*Overview, error) {
	orders, err := s.orderRepo.List(ctx, repository.OrderFilter{IncludeCancelled: true})
	if err != nil {
		return nil, err
	}
	vehicles := s.fleet.Search("")

	overview := &Overview{
		TotalOrders:   len(orders),
		TotalVehicles: len(vehicles),
	}
	for _, o := range orders {
		overview.TotalGMV += o.Price
		if o.Status == domain.OrderStatusPending {
			overview.PendingOrders++
		}
	}

	wallet := 0
	for _, v := range vehicles {
		wallet += v.WalletBalance
		if v.Status != domain.VehicleStatusOffline {
			overview.ActiveVehicles++
		}
	}
	overview.AvgWallet = roundHalfUp(float64(wallet) / float64(max(len(vehicles), 1)))

	return overview, nil
}

// roundHalfUp rounds .5 toward positive infinity.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
