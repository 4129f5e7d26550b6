// Package metrics exports sensor readings and board counters to
// Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"

	"fsrsense/host/link"
)

var promMilliVolts = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "fsr_millivolts",
		Help: "Last force sensor reading in mV",
	},
	[]string{"channel"},
)

var promReadings = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "fsr_readings_total",
		Help: "Readings received from the board",
	},
)

var promSequenceGaps = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "fsr_sequence_gaps_total",
		Help: "Readings the board sent that never arrived",
	},
)

var promFaults = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "fsr_faults_total",
		Help: "Faults reported by the board",
	},
)

var promState = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "fsr_sensor_state",
		Help: "Sampling state: 0 idle, 1 sampling, 2 calibration pending, 3 calibrating, 4 faulted",
	},
)

var promBoard = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "fsr_board_count",
		Help: "Counters reported by the board in its last status",
	},
	[]string{"counter"},
)

func init() {
	prometheus.MustRegister(
		promMilliVolts,
		promReadings,
		promSequenceGaps,
		promFaults,
		promState,
		promBoard)
}

// Recorder is a link.Subscriber that updates the exported metrics.
type Recorder struct {
	lastSeq uint32
}

var _ link.Subscriber = (*Recorder)(nil)

func (r *Recorder) OnReading(rd link.Reading) {
	promReadings.Inc()
	if r.lastSeq != 0 && rd.Seq > r.lastSeq+1 {
		promSequenceGaps.Add(float64(rd.Seq - r.lastSeq - 1))
	}
	r.lastSeq = rd.Seq
	for i, mv := range rd.MilliVolts {
		promMilliVolts.WithLabelValues(strconv.Itoa(i)).Set(float64(mv))
	}
}

func (r *Recorder) OnStatus(st link.Status) {
	promState.Set(float64(st.State))
	promBoard.WithLabelValues("samples").Set(float64(st.Samples))
	promBoard.WithLabelValues("calibrations").Set(float64(st.Calibrations))
	promBoard.WithLabelValues("dropped").Set(float64(st.Dropped))
	promBoard.WithLabelValues("overwritten").Set(float64(st.Overwritten))
	promBoard.WithLabelValues("spurious").Set(float64(st.Spurious))
}

func (r *Recorder) OnFault(link.Fault) {
	promFaults.Inc()
}

// Handler serves the registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on listen. It blocks like http.ListenAndServe.
func Serve(listen string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	logger.Infof("Serving metrics on %s/metrics", listen)
	return http.ListenAndServe(listen, mux)
}
