package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reviewDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_decisions_total",
			Help: "Verification review decisions by outcome",
		},
		[]string{"decision"},
	)

	supportMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_messages_total",
			Help: "Messages appended to support conversations by sender kind",
		},
		[]string{"sender"},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_notifications_total",
			Help: "Support notifications by dispatch result",
		},
		[]string{"result"},
	)
)
