package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cloudly",
			Name:      "uploads_total",
			Help:      "Completed upload batches by result.",
		},
		[]string{"result"})

	LifecycleOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cloudly",
			Name:      "lifecycle_ops_total",
			Help:      "Trash, restore, and permanent-delete operations by op and result.",
		},
		[]string{"op", "result"})

	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cloudly",
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		},
		[]string{"result"})
)
