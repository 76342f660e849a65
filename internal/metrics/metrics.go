package metrics

import (
	"sync"

	"welfarecheck-platform/internal/callrecords"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	providerEventsCounter  *prometheus.CounterVec
	statusWritesCounter    *prometheus.CounterVec
	conflictRetriesCounter prometheus.Counter
	scheduledCallsCounter  prometheus.Counter
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		providerEventsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provider_events_total",
				Help: "Total number of received voice provider events by type.",
			},
			[]string{"event_type"},
		)

		statusWritesCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "call_status_writes_total",
				Help: "Total number of call record status writes by resulting status.",
			},
			[]string{"status"},
		)

		conflictRetriesCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reconcile_conflict_retries_total",
				Help: "Total number of optimistic write conflicts that triggered a retry.",
			},
		)

		scheduledCallsCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "calls_scheduled_total",
				Help: "Total number of outbound check-in calls accepted for dialing.",
			},
		)

		prometheus.MustRegister(
			providerEventsCounter,
			statusWritesCounter,
			conflictRetriesCounter,
			scheduledCallsCounter,
		)

		// Ensure counter vectors are visible at /metrics before first increment.
		for _, et := range []string{"call_started", "call_ended", "call_analyzed"} {
			providerEventsCounter.WithLabelValues(et)
		}
		for _, st := range []callrecords.CallStatus{
			callrecords.CallStatusScheduled,
			callrecords.CallStatusRinging,
			callrecords.CallStatusInProgress,
			callrecords.CallStatusCompleted,
			callrecords.CallStatusCompletedTransferred,
			callrecords.CallStatusFailed,
			callrecords.CallStatusBusy,
			callrecords.CallStatusNoAnswer,
			callrecords.CallStatusCanceled,
			callrecords.CallStatusUnknown,
		} {
			statusWritesCounter.WithLabelValues(string(st))
		}
	})
}

// Recorder satisfies the reconciler's metrics hook.
type Recorder struct{}

func (Recorder) EventReceived(eventType string) {
	Init()
	providerEventsCounter.WithLabelValues(eventType).Inc()
}

func (Recorder) StatusWritten(status callrecords.CallStatus) {
	Init()
	statusWritesCounter.WithLabelValues(string(status)).Inc()
}

func (Recorder) ConflictRetried() {
	Init()
	conflictRetriesCounter.Inc()
}

func IncScheduledCalls() {
	Init()
	scheduledCallsCounter.Inc()
}
