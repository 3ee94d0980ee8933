package notifications

import (
	"time"

	"github.com/bissquit/crisis-room/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "crisisroom"

var (
	communicationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "dispatched_total",
			Help:      "Total communications dispatched by channel and delivery status",
		},
		[]string{"channel", "status"},
	)

	dispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "send_duration_seconds",
			Help:      "Time spent inside a channel sender",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)
)

func recordDispatch(channel string, status domain.DeliveryStatus) {
	communicationsDispatched.WithLabelValues(channel, string(status)).Inc()
}

func recordDispatchDuration(channel string, duration time.Duration) {
	dispatchDuration.WithLabelValues(channel).Observe(duration.Seconds())
}
