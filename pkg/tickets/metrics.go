package tickets

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ticketsCreated is the number of tickets created by type.
	ticketsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_created_total",
			Help: "Total number of tickets created",
		},
		[]string{"type"},
	)

	// ticketsClosed is the number of tickets closed.
	ticketsClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickets_closed_total",
			Help: "Total number of tickets closed",
		},
	)

	// ticketClaims is the number of claim changes by action.
	ticketClaims = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_claims_total",
			Help: "Total number of ticket claims and unclaims",
		},
		[]string{"action"},
	)
)
