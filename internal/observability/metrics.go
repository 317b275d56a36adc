package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attend",
		Name:      "checkins_total",
		Help:      "Total number of check-ins recorded",
	}, []string{"method", "status"})

	CheckOuts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attend",
		Name:      "checkouts_total",
		Help:      "Total number of check-outs recorded",
	})

	Matches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attend",
		Name:      "matches_total",
		Help:      "Total number of match attempts by outcome",
	}, []string{"outcome"})

	MatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "attend",
		Name:      "match_duration_seconds",
		Help:      "Duration of probe-to-candidate matching",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	Anomalies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attend",
		Name:      "anomalies_total",
		Help:      "Total number of anomalies raised by the detector",
	}, []string{"type", "severity"})

	TemplatesEnrolled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attend",
		Name:      "templates_enrolled_total",
		Help:      "Total number of face templates enrolled",
	})

	ConsentWithdrawals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attend",
		Name:      "consent_withdrawals_total",
		Help:      "Total number of consent withdrawals by purpose",
	}, []string{"purpose"})

	CertificatesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attend",
		Name:      "certificates_issued_total",
		Help:      "Total number of attendance certificates issued",
	})

	CertificateVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attend",
		Name:      "certificate_verifications_total",
		Help:      "Total number of public certificate lookups by outcome",
	}, []string{"outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attend",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attend",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
