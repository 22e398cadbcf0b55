package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	packetsRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smppctl",
			Subsystem: "link",
			Name:      "packets_read_total",
			Help:      "Packets decoded from the transport link.",
		},
		[]string{"command"},
	)
	packetsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smppctl",
			Subsystem: "link",
			Name:      "packets_written_total",
			Help:      "Packets written to the transport link.",
		},
		[]string{"command"},
	)
	readTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smppctl",
			Subsystem: "receiver",
			Name:      "read_timeouts_total",
			Help:      "Read timeouts observed by the receiver, by session state.",
		},
		[]string{"state"},
	)
	ioFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "smppctl",
			Subsystem: "receiver",
			Name:      "io_failures_total",
			Help:      "Receiver read failures that are not timeouts.",
		},
	)
	receiverExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smppctl",
			Subsystem: "receiver",
			Name:      "exits_total",
			Help:      "Receiver loop exits by reason.",
		},
		[]string{"reason"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smppctl",
			Subsystem: "session",
			Name:      "state_transitions_total",
			Help:      "Session state transitions; success=false marks a lost compare-and-set.",
		},
		[]string{"from", "to", "success"},
	)
	dispatchRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smppctl",
			Subsystem: "dispatch",
			Name:      "rejected_total",
			Help:      "Notifications rejected by a dispatcher.",
		},
		[]string{"dispatcher"},
	)
	observerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smppctl",
			Subsystem: "dispatch",
			Name:      "observer_failures_total",
			Help:      "Observer calls that returned an error or panicked.",
		},
		[]string{"dispatcher"},
	)
	relayPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smppctl",
			Subsystem: "relay",
			Name:      "published_total",
			Help:      "Inbound messages handed to the relay publisher.",
		},
		[]string{"command", "success"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smppctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"server", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "smppctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"server", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			packetsRead,
			packetsWritten,
			readTimeouts,
			ioFailures,
			receiverExits,
			stateTransitions,
			dispatchRejected,
			observerFailures,
			relayPublished,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordPacketRead(command string) {
	RegisterMetrics()
	packetsRead.WithLabelValues(command).Inc()
}

func RecordPacketWritten(command string) {
	RegisterMetrics()
	packetsWritten.WithLabelValues(command).Inc()
}

func RecordReadTimeout(state string) {
	RegisterMetrics()
	readTimeouts.WithLabelValues(state).Inc()
}

func RecordIOFailure() {
	RegisterMetrics()
	ioFailures.Inc()
}

func RecordReceiverExit(reason string) {
	RegisterMetrics()
	receiverExits.WithLabelValues(reason).Inc()
}

func RecordStateTransition(from, to string, success bool) {
	RegisterMetrics()
	stateTransitions.WithLabelValues(from, to, strconv.FormatBool(success)).Inc()
}

func RecordDispatchRejected(dispatcher string) {
	RegisterMetrics()
	dispatchRejected.WithLabelValues(dispatcher).Inc()
}

func RecordObserverFailure(dispatcher string) {
	RegisterMetrics()
	observerFailures.WithLabelValues(dispatcher).Inc()
}

func RecordRelayPublished(command string, success bool) {
	RegisterMetrics()
	relayPublished.WithLabelValues(command, strconv.FormatBool(success)).Inc()
}

func RecordHTTPRequest(server, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(server, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(server, method, path, statusLabel).Observe(duration.Seconds())
}
