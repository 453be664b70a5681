package panel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// panelRequestsTotal counts outbound panel calls by classification outcome.
var panelRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "streamvault_panel_requests_total",
	Help: "Outbound panel API calls by response classification.",
}, []string{"outcome"})
