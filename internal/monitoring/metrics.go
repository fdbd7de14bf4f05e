package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service counters.
type Metrics struct {
	// Ingestion
	MessagesReceived  prometheus.Counter
	MessagesPersisted prometheus.Counter
	MessagesDropped   *prometheus.CounterVec
	BytesIngested     prometheus.Counter

	// Inboxes
	InboxesCreated prometheus.Counter
	InboxesDeleted prometheus.Counter

	// Reclamation
	SweepRuns           prometheus.Counter
	InboxesReclaimed    prometheus.Counter
	MessagesReclaimed   prometheus.Counter
	AttachmentsOrphaned prometheus.Counter

	// SMTP connections
	ConnectionsRefused prometheus.Counter
}

// NewMetrics registers the service counters with reg and returns them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MessagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "postdrop_messages_received_total",
			Help: "Payloads accepted by the SMTP listener",
		}),
		MessagesPersisted: factory.NewCounter(prometheus.CounterOpts{
			Name: "postdrop_messages_persisted_total",
			Help: "Messages written to the store",
		}),
		MessagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "postdrop_messages_dropped_total",
			Help: "Payloads dropped without persistence",
		}, []string{"reason"}),
		BytesIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "postdrop_bytes_ingested_total",
			Help: "Raw payload bytes read from SMTP sessions",
		}),
		InboxesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "postdrop_inboxes_created_total",
			Help: "Inboxes allocated",
		}),
		InboxesDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "postdrop_inboxes_deleted_total",
			Help: "Inboxes removed on request",
		}),
		SweepRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "postdrop_sweep_runs_total",
			Help: "Reclamation sweeps executed",
		}),
		InboxesReclaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "postdrop_inboxes_reclaimed_total",
			Help: "Expired inboxes removed by the sweep",
		}),
		MessagesReclaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "postdrop_messages_reclaimed_total",
			Help: "Messages removed by the sweep",
		}),
		AttachmentsOrphaned: factory.NewCounter(prometheus.CounterOpts{
			Name: "postdrop_attachments_orphaned_total",
			Help: "Orphaned attachment rows reconciled by the sweep",
		}),
		ConnectionsRefused: factory.NewCounter(prometheus.CounterOpts{
			Name: "postdrop_smtp_connections_refused_total",
			Help: "SMTP connections refused by the limiter",
		}),
	}
}

// Handler returns the Prometheus scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
