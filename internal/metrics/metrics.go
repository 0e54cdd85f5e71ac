// Package metrics registers the server's Prometheus collectors.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roomchat",
		Name:      "messages_sent_total",
		Help:      "Messages accepted for persistence, by transport and outcome.",
	}, []string{"transport", "outcome"})

	MessagesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "roomchat",
		Name:      "messages_delivered_total",
		Help:      "new_message frames queued to subscribed clients, backlog included.",
	})

	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "roomchat",
		Name:      "websocket_clients",
		Help:      "Currently registered WebSocket clients.",
	})

	RoomSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "roomchat",
		Name:      "room_subscriptions",
		Help:      "Active client room subscriptions.",
	})

	DroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "roomchat",
		Name:      "dropped_frames_total",
		Help:      "Outbound frames dropped because a client's send buffer was full.",
	})
)

const (
	TransportWebSocket = "websocket"
	TransportREST      = "rest"
	OutcomeOK          = "ok"
	OutcomeRejected    = "rejected"
	OutcomeError       = "error"
)

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
