package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	purchasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventhash_ticket_purchases_total",
		Help: "Ticket purchase attempts, labeled by outcome",
	}, []string{"outcome"})

	checkinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventhash_ticket_checkins_total",
		Help: "Ticket check-in attempts, labeled by outcome",
	}, []string{"outcome"})

	issuanceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eventhash_issuance_duration_seconds",
		Help:    "Latency distribution of ledger-backed operations",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"operation"})
)
