package stratumcore

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const poolErrorHistorySize = 6

type ErrorEvent struct {
	At      time.Time
	Type    string
	Message string
}

// PromMetrics is an EventSink that keeps Prometheus collectors for jobs,
// shares, blocks and node RPC calls.
type PromMetrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	newBlocks        prometheus.Counter
	updatedJobs      prometheus.Counter
	currentHeight    prometheus.Gauge
	networkDiff      prometheus.Gauge
	sharesAccepted   prometheus.Counter
	sharesRejected   *prometheus.CounterVec
	acceptedWork     prometheus.Counter
	bestShareDiff    prometheus.Gauge
	blocksFound      prometheus.Counter
	lastBlockHeight  prometheus.Gauge
	blockSubmissions *prometheus.CounterVec
	rpcLatency       *prometheus.HistogramVec
	rpcErrors        *prometheus.CounterVec

	mu           sync.Mutex
	bestShare    float64
	errorHistory []ErrorEvent
}

// NewPromMetrics registers all collectors on a private registry. An empty
// namespace uses the default.
func NewPromMetrics(namespace string) (*PromMetrics, error) {
	if namespace == "" {
		namespace = defaultMetricNamespace
	}
	reg := prometheus.NewRegistry()

	m := &PromMetrics{
		registry:         reg,
		newBlocks:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "new_blocks_total", Help: "Templates installed as a new block."}),
		updatedJobs:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "updated_jobs_total", Help: "Jobs refreshed on the current block."}),
		currentHeight:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "current_height", Help: "Height of the current job."}),
		networkDiff:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "network_difficulty", Help: "Network difficulty of the current job."}),
		sharesAccepted:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "shares_accepted_total", Help: "Accepted shares."}),
		sharesRejected:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "shares_rejected_total", Help: "Rejected shares by reason."}, []string{"reason"}),
		acceptedWork:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "accepted_difficulty_total", Help: "Sum of credited difficulty of accepted shares."}),
		bestShareDiff:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "best_share_difficulty", Help: "Highest share difficulty seen."}),
		blocksFound:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "blocks_found_total", Help: "Block candidates found."}),
		lastBlockHeight:  prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "last_found_block_height", Help: "Height of the last block candidate."}),
		blockSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "block_submissions_total", Help: "Block submissions by result."}, []string{"result"}),
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "Node RPC latency by method.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method"}),
		rpcErrors: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "rpc_errors_total", Help: "Failed node RPC calls by method."}, []string{"method"}),
	}

	collectors := []prometheus.Collector{
		m.newBlocks, m.updatedJobs, m.currentHeight, m.networkDiff,
		m.sharesAccepted, m.sharesRejected, m.acceptedWork, m.bestShareDiff,
		m.blocksFound, m.lastBlockHeight, m.blockSubmissions, m.rpcLatency, m.rpcErrors,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return m, nil
}

// Handler exposes the HTTP handler for scraping.
func (m *PromMetrics) Handler() http.Handler {
	return m.handler
}

func (m *PromMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PromMetrics) NewBlock(job *Job) {
	m.newBlocks.Inc()
	m.observeJob(job)
}

func (m *PromMetrics) UpdatedJob(job *Job, _ bool) {
	m.updatedJobs.Inc()
	m.observeJob(job)
}

func (m *PromMetrics) observeJob(job *Job) {
	if job == nil {
		return
	}
	m.currentHeight.Set(float64(job.Height()))
	m.networkDiff.Set(job.Difficulty)
}

func (m *PromMetrics) Share(rec ShareRecord, blockHex string) {
	if !rec.Accepted {
		m.sharesRejected.WithLabelValues(sanitizeLabel(rec.Reason, "unspecified")).Inc()
		return
	}
	m.sharesAccepted.Inc()
	m.acceptedWork.Add(rec.Difficulty)

	m.mu.Lock()
	if rec.ShareDiff > m.bestShare {
		m.bestShare = rec.ShareDiff
		m.bestShareDiff.Set(rec.ShareDiff)
	}
	m.mu.Unlock()

	if blockHex != "" {
		m.blocksFound.Inc()
		m.lastBlockHeight.Set(float64(rec.Height))
	}
}

// ObserveRPC records latency and failures of node calls.
func (m *PromMetrics) ObserveRPC(method string, elapsed time.Duration, err error) {
	method = sanitizeLabel(method, "unknown")
	m.rpcLatency.WithLabelValues(method).Observe(elapsed.Seconds())
	if err != nil {
		m.rpcErrors.WithLabelValues(method).Inc()
		m.RecordErrorEvent("rpc", err.Error(), time.Now())
	}
}

// RecordBlockSubmission counts a submitblock outcome ("accepted" or "error").
func (m *PromMetrics) RecordBlockSubmission(result string) {
	m.blockSubmissions.WithLabelValues(sanitizeLabel(result, "unknown")).Inc()
}

func (m *PromMetrics) RecordErrorEvent(kind, message string, at time.Time) {
	if kind == "" {
		kind = "unknown"
	}
	if message == "" {
		message = "unspecified"
	}
	m.mu.Lock()
	m.errorHistory = append(m.errorHistory, ErrorEvent{At: at, Type: kind, Message: message})
	if len(m.errorHistory) > poolErrorHistorySize {
		m.errorHistory = m.errorHistory[len(m.errorHistory)-poolErrorHistorySize:]
	}
	m.mu.Unlock()
}

// SnapshotErrorHistory returns the most recent error events, oldest first.
func (m *PromMetrics) SnapshotErrorHistory() []ErrorEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ErrorEvent, len(m.errorHistory))
	copy(out, m.errorHistory)
	return out
}

func sanitizeLabel(val, fallback string) string {
	val = strings.TrimSpace(val)
	if val == "" {
		return fallback
	}
	return val
}
