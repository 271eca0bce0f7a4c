// Package metrics exposes the gateway's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectedDevices tracks live registry entries.
	ConnectedDevices = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "devicegw",
		Name:      "connected_devices",
		Help:      "Number of devices with a live websocket connection.",
	})

	// Commands counts control commands by action and outcome.
	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devicegw",
		Name:      "commands_total",
		Help:      "Playback control commands processed.",
	}, []string{"action", "outcome"})

	// Pushes counts device push attempts by result.
	Pushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devicegw",
		Name:      "pushes_total",
		Help:      "Best-effort pushes to device connections.",
	}, []string{"result"})

	// ProviderSessions counts opened provider sessions by vendor.
	ProviderSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devicegw",
		Name:      "provider_sessions_total",
		Help:      "Voice provider sessions opened.",
	}, []string{"provider"})
)
