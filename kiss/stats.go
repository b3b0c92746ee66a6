package kiss

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Stats is the plain snapshot spec.md §6's session.stats() returns.
type Stats struct {
	TxFrames   uint64
	RxFrames   uint64
	CRCErrors  uint64
	XOrErrors  uint64
	Overflows  uint64
	Reconnects uint64
}

// sessionStats backs Stats with prometheus.Counters so a Session can be
// registered directly as a prometheus.Collector (grounded on
// runZeroInc-conniver/pkg/exporter/exporter.go's Desc/Collector idiom),
// while Session.Stats() still returns the plain struct the spec names.
type sessionStats struct {
	txFrames   prometheus.Counter
	rxFrames   prometheus.Counter
	crcErrors  prometheus.Counter
	xorErrors  prometheus.Counter
	overflows  prometheus.Counter
	reconnects prometheus.Counter
}

func newSessionStats(sessionID string) *sessionStats {
	labels := prometheus.Labels{"session": sessionID}
	mk := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "kiss",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}
	return &sessionStats{
		txFrames:   mk("tx_frames_total", "DATA frames transmitted to the TNC."),
		rxFrames:   mk("rx_frames_total", "DATA frames received and successfully decoded."),
		crcErrors:  mk("crc_errors_total", "SMACK CRC-16 mismatches."),
		xorErrors:  mk("xor_errors_total", "XOR checksum mismatches."),
		overflows:  mk("queue_overflows_total", "Per-port queue drop-oldest events."),
		reconnects: mk("reconnects_total", "Successful transport reconnects."),
	}
}

// Describe implements prometheus.Collector.
func (s *sessionStats) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(s, ch)
}

// Collect implements prometheus.Collector.
func (s *sessionStats) Collect(ch chan<- prometheus.Metric) {
	for _, c := range []prometheus.Counter{
		s.txFrames, s.rxFrames, s.crcErrors, s.xorErrors, s.overflows, s.reconnects,
	} {
		ch <- c
	}
}

func (s *sessionStats) snapshot() Stats {
	return Stats{
		TxFrames:   counterValue(s.txFrames),
		RxFrames:   counterValue(s.rxFrames),
		CRCErrors:  counterValue(s.crcErrors),
		XOrErrors:  counterValue(s.xorErrors),
		Overflows:  counterValue(s.overflows),
		Reconnects: counterValue(s.reconnects),
	}
}

func counterValue(c prometheus.Counter) uint64 {
	var m dto.Metric
	_ = c.Write(&m)
	if m.Counter == nil {
		return 0
	}
	return uint64(m.Counter.GetValue())
}
