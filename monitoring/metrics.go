package monitoring

import (
	"context"
	"time"

	"raffle-system/internal/status"
	"raffle-system/models"

	"github.com/pocketbase/pocketbase/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	reservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raffle_reservations_total",
			Help: "Reservation attempts by mode and result",
		},
		[]string{"mode", "result"},
	)

	reservationRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raffle_reservation_retries_total",
			Help: "Transaction retries caused by store conflicts",
		},
	)

	ordersPaid = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raffle_orders_paid_total",
			Help: "Orders confirmed as paid",
		},
	)

	ordersCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raffle_orders_cancelled_total",
			Help: "Orders cancelled by contacts or operators",
		},
	)

	ticketsReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raffle_tickets_released_total",
			Help: "Tickets returned to the available pool",
		},
	)

	sweepRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raffle_sweep_runs_total",
			Help: "Expiry sweep executions",
		},
	)

	sweepOrdersExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raffle_sweep_orders_expired_total",
			Help: "Orders expired by the sweep",
		},
	)

	drawsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raffle_draws_total",
			Help: "Raffle winner draws",
		},
	)

	duplicateMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_duplicate_messages_total",
			Help: "Inbound messages answered from the recorded outcome",
		},
	)

	dispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_dispatch_duration_seconds",
			Help:    "End to end processing time of an inbound message",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"result"},
	)

	stateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_state_transitions_total",
			Help: "Conversation state transitions",
		},
		[]string{"from", "to"},
	)

	pendingOrders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "raffle_pending_payment_orders",
			Help: "Orders currently awaiting payment confirmation",
		},
	)

	activeRaffles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "raffle_active_raffles",
			Help: "Raffles currently open for sale",
		},
	)

	redisUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "redis_up",
			Help: "Whether the Redis ping succeeds",
		},
	)
)

func TrackReservation(mode string, err error) {
	reservationsTotal.WithLabelValues(mode, resultLabel(err)).Inc()
}

func TrackStoreRetry() {
	reservationRetries.Inc()
}

func TrackOrderPaid() {
	ordersPaid.Inc()
}

func TrackOrderCancelled() {
	ordersCancelled.Inc()
}

func TrackTicketsReleased(n int) {
	if n > 0 {
		ticketsReleased.Add(float64(n))
	}
}

func TrackSweep(released, expiredOrders int) {
	sweepRuns.Inc()
	TrackTicketsReleased(released)
	if expiredOrders > 0 {
		sweepOrdersExpired.Add(float64(expiredOrders))
	}
}

func TrackDraw() {
	drawsTotal.Inc()
}

func TrackDuplicate() {
	duplicateMessages.Inc()
}

func TrackDispatch(d time.Duration, err error) {
	dispatchDuration.WithLabelValues(resultLabel(err)).Observe(d.Seconds())
}

func TrackTransition(from, to string) {
	if from == "" || to == "" {
		return
	}
	stateTransitions.WithLabelValues(from, to).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case status.IsDomain(err):
		return "rejected"
	default:
		return "error"
	}
}

// Monitor refreshes the inventory gauges in the background.
type Monitor struct {
	app   core.App
	redis *redis.Client
}

func NewMonitor(app core.App, redisClient *redis.Client) *Monitor {
	monitor := &Monitor{app: app, redis: redisClient}

	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		m.collectStoreMetrics()
		m.collectRedisMetrics(ctx)
		cancel()
	}
}

func (m *Monitor) collectStoreMetrics() {
	var pending int
	err := m.app.DB().
		NewQuery("SELECT COUNT(*) FROM orders WHERE status = '" + models.OrderPendingPayment + "'").
		Row(&pending)
	if err == nil {
		pendingOrders.Set(float64(pending))
	}

	var active int
	err = m.app.DB().
		NewQuery("SELECT COUNT(*) FROM raffles WHERE status = '" + models.RaffleActive + "'").
		Row(&active)
	if err == nil {
		activeRaffles.Set(float64(active))
	}
}

func (m *Monitor) collectRedisMetrics(ctx context.Context) {
	if m.redis == nil {
		return
	}
	if err := m.redis.Ping(ctx).Err(); err != nil {
		redisUp.Set(0)
		return
	}
	redisUp.Set(1)
}
