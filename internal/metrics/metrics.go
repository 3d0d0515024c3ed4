package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watchdot_scans_total",
		Help: "Chain scans by outcome",
	}, []string{"chain", "outcome"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watchdot_notifications_total",
		Help: "Notification emissions by category and result",
	}, []string{"chain", "category", "result"})

	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watchdot_submissions_total",
		Help: "Proxy extrinsic submissions by call and status",
	}, []string{"chain", "call", "status"})
)
