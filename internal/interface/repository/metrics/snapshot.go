package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// sum はコレクターが持つ全系列の値を合計する.
func sum(c prometheus.Collector) int64 {
	ch := make(chan prometheus.Metric, 16)
	go func() {
		c.Collect(ch)
		close(ch)
	}()

	var total float64
	for m := range ch {
		var pb dto.Metric
		if err := m.Write(&pb); err != nil {
			continue
		}
		switch {
		case pb.Counter != nil:
			total += pb.Counter.GetValue()
		case pb.Gauge != nil:
			total += pb.Gauge.GetValue()
		}
	}
	return int64(total)
}

// value はラベル付きの単一系列の値を返す.
func value(vec *prometheus.CounterVec, labels ...string) int64 {
	var pb dto.Metric
	if err := vec.WithLabelValues(labels...).Write(&pb); err != nil {
		return 0
	}
	return int64(pb.GetCounter().GetValue())
}
