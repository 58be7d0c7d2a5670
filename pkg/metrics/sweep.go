package metrics

import "github.com/prometheus/client_golang/prometheus"

// SweepMetrics counts what the expiry sweeper reclaims.
type SweepMetrics struct {
	releasedNumbers    prometheus.Counter
	cancelledPurchases prometheus.Counter
}

// NewSweepMetrics registers the sweep counters on the provided registerer.
func NewSweepMetrics(reg prometheus.Registerer) *SweepMetrics {
	if reg == nil {
		return &SweepMetrics{}
	}
	released := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rifa",
		Name:      "sweep_released_numbers_total",
		Help:      "Ticket numbers returned to the pool by the expiry sweeper.",
	})
	cancelled := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rifa",
		Name:      "sweep_cancelled_purchases_total",
		Help:      "Pending purchases cancelled by the expiry sweeper.",
	})
	reg.MustRegister(released, cancelled)
	return &SweepMetrics{releasedNumbers: released, cancelledPurchases: cancelled}
}

// AddReleased records numbers returned to the pool.
func (s *SweepMetrics) AddReleased(n int) {
	if s == nil || s.releasedNumbers == nil || n <= 0 {
		return
	}
	s.releasedNumbers.Add(float64(n))
}

// AddCancelled records purchases cancelled by the sweep.
func (s *SweepMetrics) AddCancelled(n int) {
	if s == nil || s.cancelledPurchases == nil || n <= 0 {
		return
	}
	s.cancelledPurchases.Add(float64(n))
}
