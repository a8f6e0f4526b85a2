package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var storeOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_operations_total",
		Help:      "分析结果存储操作次数。",
	},
	[]string{"op", "outcome"},
)

// ObserveStoreOperation 记录一次存储操作（save / get / list / delete_slot / delete_user / sweep）。
func ObserveStoreOperation(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	storeOperationsTotal.WithLabelValues(op, outcome).Inc()
}
