// Package metrics provides Prometheus instrumentation for the realtime relay,
// the notification emitter and the email queue.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connections tracks the number of live websocket connections.
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "designguard_ws_connections",
		Help: "Current number of live websocket connections",
	})

	// ChatMessages counts send_message outcomes by result:
	// "sent", "rejected" or "failed".
	ChatMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "designguard_chat_messages_total",
		Help: "Chat messages handled by the relay",
	}, []string{"result"})

	// Notifications counts emitter outcomes: "persisted", "pushed", "push_failed".
	Notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "designguard_notifications_total",
		Help: "Notifications created and pushed",
	}, []string{"result"})

	// Emails counts transactional email outcomes: "queued", "sent", "failed".
	Emails = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "designguard_emails_total",
		Help: "Transactional emails by outcome",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(
		Connections,
		ChatMessages,
		Notifications,
		Emails,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
