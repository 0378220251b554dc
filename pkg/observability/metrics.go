package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the registration pipeline.
type Metrics struct {
	// KNN metrics
	KNNQueriesTotal *prometheus.CounterVec
	KNNQueryLatency prometheus.Histogram

	// Descriptor metrics
	NormalsEstimated   prometheus.Counter
	DescriptorsExtracted *prometheus.CounterVec
	DescriptorLatency  *prometheus.HistogramVec

	// Correspondence metrics
	CorrespondencesGenerated prometheus.Counter
	CorrespondenceCandidates prometheus.Counter
	RatioTestRejections      prometheus.Counter
	MutualTestRejections     prometheus.Counter

	// Coarse registration metrics
	CoarseIterations   *prometheus.HistogramVec
	CoarseInlierRatio  *prometheus.HistogramVec
	CoarseLatency      *prometheus.HistogramVec
	CoarseRunsTotal    *prometheus.CounterVec

	// Fine registration metrics
	FineIterations  *prometheus.HistogramVec
	FineFinalError  *prometheus.HistogramVec
	FineConverged   *prometheus.CounterVec
	FineLatency     *prometheus.HistogramVec

	// Worker pool metrics
	WorkerPoolSubmissions prometheus.Counter
	WorkerPoolInFlight    prometheus.Gauge
	WorkerPoolRejected    prometheus.Counter

	// System metrics
	GoroutinesCount prometheus.Gauge
	MemoryUsage     prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		KNNQueriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pcreg_knn_queries_total",
				Help: "Total number of k-nearest-neighbor queries by index kind",
			},
			[]string{"index"},
		),
		KNNQueryLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pcreg_knn_query_latency_seconds",
				Help:    "k-nearest-neighbor query latency in seconds",
				Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
			},
		),

		NormalsEstimated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pcreg_normals_estimated_total",
				Help: "Total number of per-point normals estimated",
			},
		),
		DescriptorsExtracted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pcreg_descriptors_extracted_total",
				Help: "Total number of descriptors extracted by extractor kind",
			},
			[]string{"extractor"},
		),
		DescriptorLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pcreg_descriptor_latency_seconds",
				Help:    "Descriptor extraction latency in seconds by extractor kind",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"extractor"},
		),

		CorrespondencesGenerated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pcreg_correspondences_generated_total",
				Help: "Total number of correspondences that survived every filtering stage",
			},
		),
		CorrespondenceCandidates: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pcreg_correspondence_candidates_total",
				Help: "Total number of candidate correspondences considered before filtering",
			},
		),
		RatioTestRejections: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pcreg_correspondence_ratio_rejections_total",
				Help: "Total number of candidates rejected by Lowe's ratio test",
			},
		),
		MutualTestRejections: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pcreg_correspondence_mutual_rejections_total",
				Help: "Total number of candidates rejected by mutual verification",
			},
		),

		CoarseIterations: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pcreg_coarse_iterations",
				Help:    "Iterations performed by a coarse registration run, by algorithm",
				Buckets: []float64{1, 10, 100, 1000, 5000, 10000, 50000},
			},
			[]string{"algorithm"},
		),
		CoarseInlierRatio: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pcreg_coarse_inlier_ratio",
				Help:    "Fraction of correspondences accepted as inliers by a coarse registration run",
				Buckets: []float64{.05, .1, .2, .3, .4, .5, .6, .7, .8, .9, 1.0},
			},
			[]string{"algorithm"},
		),
		CoarseLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pcreg_coarse_latency_seconds",
				Help:    "Coarse registration wall-clock latency in seconds, by algorithm",
				Buckets: []float64{.001, .01, .1, .5, 1, 5, 10, 30, 60},
			},
			[]string{"algorithm"},
		),
		CoarseRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pcreg_coarse_runs_total",
				Help: "Total number of coarse registration runs by algorithm and outcome",
			},
			[]string{"algorithm", "outcome"},
		),

		FineIterations: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pcreg_fine_iterations",
				Help:    "Iterations performed by a fine registration run, by algorithm",
				Buckets: []float64{1, 5, 10, 20, 50, 100, 200},
			},
			[]string{"algorithm"},
		),
		FineFinalError: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pcreg_fine_final_error",
				Help:    "Final fitness error reported by a fine registration run, by algorithm",
				Buckets: []float64{.00001, .0001, .001, .01, .1, 1},
			},
			[]string{"algorithm"},
		),
		FineConverged: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pcreg_fine_converged_total",
				Help: "Total number of fine registration runs by algorithm and convergence outcome",
			},
			[]string{"algorithm", "converged"},
		),
		FineLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pcreg_fine_latency_seconds",
				Help:    "Fine registration wall-clock latency in seconds, by algorithm",
				Buckets: []float64{.001, .01, .1, .5, 1, 5, 10, 30},
			},
			[]string{"algorithm"},
		),

		WorkerPoolSubmissions: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pcreg_workerpool_submissions_total",
				Help: "Total number of tasks submitted to the worker pool",
			},
		),
		WorkerPoolInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pcreg_workerpool_in_flight",
				Help: "Current number of worker pool tasks executing",
			},
		),
		WorkerPoolRejected: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pcreg_workerpool_rejected_total",
				Help: "Total number of worker pool submissions that fell back to inline execution",
			},
		),

		GoroutinesCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pcreg_goroutines",
				Help: "Current number of goroutines",
			},
		),
		MemoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pcreg_memory_bytes",
				Help: "Memory usage in bytes",
			},
		),
	}

	return m
}

// RecordKNNQuery records one k-nearest-neighbor query against an index of
// the given kind ("kdtree" or "bruteforce").
func (m *Metrics) RecordKNNQuery(index string, duration time.Duration) {
	m.KNNQueriesTotal.WithLabelValues(index).Inc()
	m.KNNQueryLatency.Observe(duration.Seconds())
}

// RecordNormalsEstimated records a batch of normal estimations.
func (m *Metrics) RecordNormalsEstimated(count int) {
	m.NormalsEstimated.Add(float64(count))
}

// RecordDescriptorExtraction records one descriptor extraction run.
func (m *Metrics) RecordDescriptorExtraction(extractor string, count int, duration time.Duration) {
	m.DescriptorsExtracted.WithLabelValues(extractor).Add(float64(count))
	m.DescriptorLatency.WithLabelValues(extractor).Observe(duration.Seconds())
}

// RecordCorrespondenceGeneration records one correspondence generation run's
// filtering funnel.
func (m *Metrics) RecordCorrespondenceGeneration(stats CorrespondenceStats) {
	m.CorrespondenceCandidates.Add(float64(stats.TotalCandidates))
	m.RatioTestRejections.Add(float64(stats.TotalCandidates - stats.RatioTestPassed))
	m.MutualTestRejections.Add(float64(stats.RatioTestPassed - stats.MutualTestPassed))
	m.CorrespondencesGenerated.Add(float64(stats.DistanceTestPassed))
}

// CorrespondenceStats mirrors pkg/correspondence.Stats without importing it,
// keeping observability free of a dependency on every pipeline stage.
type CorrespondenceStats struct {
	TotalCandidates    int
	RatioTestPassed    int
	MutualTestPassed   int
	DistanceTestPassed int
}

// RecordCoarseRun records the outcome of one coarse registration run.
func (m *Metrics) RecordCoarseRun(algorithm string, iterations int, inlierRatio float64, duration time.Duration, converged bool) {
	m.CoarseIterations.WithLabelValues(algorithm).Observe(float64(iterations))
	m.CoarseInlierRatio.WithLabelValues(algorithm).Observe(inlierRatio)
	m.CoarseLatency.WithLabelValues(algorithm).Observe(duration.Seconds())
	outcome := "rejected"
	if converged {
		outcome = "accepted"
	}
	m.CoarseRunsTotal.WithLabelValues(algorithm, outcome).Inc()
}

// RecordFineRun records the outcome of one fine registration run.
func (m *Metrics) RecordFineRun(algorithm string, iterations int, finalError float64, duration time.Duration, converged bool) {
	m.FineIterations.WithLabelValues(algorithm).Observe(float64(iterations))
	m.FineFinalError.WithLabelValues(algorithm).Observe(finalError)
	m.FineLatency.WithLabelValues(algorithm).Observe(duration.Seconds())
	label := "false"
	if converged {
		label = "true"
	}
	m.FineConverged.WithLabelValues(algorithm, label).Inc()
}

// RecordWorkerPoolSubmission records a task submitted to the worker pool.
func (m *Metrics) RecordWorkerPoolSubmission(rejected bool) {
	m.WorkerPoolSubmissions.Inc()
	if rejected {
		m.WorkerPoolRejected.Inc()
	}
}

// UpdateWorkerPoolInFlight updates the in-flight task gauge.
func (m *Metrics) UpdateWorkerPoolInFlight(count int) {
	m.WorkerPoolInFlight.Set(float64(count))
}

// UpdateGoroutineCount updates goroutine count.
func (m *Metrics) UpdateGoroutineCount(count int) {
	m.GoroutinesCount.Set(float64(count))
}

// UpdateMemoryUsage updates memory usage.
func (m *Metrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}
