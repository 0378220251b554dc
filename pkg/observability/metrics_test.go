package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// NewMetrics registers every collector against the default Prometheus
// registerer, so the whole file shares one instance to avoid duplicate
// registration panics across test functions.
var sharedMetrics = NewMetrics()

func TestMetrics(t *testing.T) {
	m := sharedMetrics

	t.Run("NewMetrics", func(t *testing.T) {
		if m == nil {
			t.Fatal("NewMetrics returned nil")
		}

		// Verify all metrics are initialized
		if m.KNNQueriesTotal == nil {
			t.Error("KNNQueriesTotal not initialized")
		}
		if m.KNNQueryLatency == nil {
			t.Error("KNNQueryLatency not initialized")
		}
		if m.CorrespondencesGenerated == nil {
			t.Error("CorrespondencesGenerated not initialized")
		}
		if m.CoarseRunsTotal == nil {
			t.Error("CoarseRunsTotal not initialized")
		}
		if m.FineConverged == nil {
			t.Error("FineConverged not initialized")
		}
	})

	t.Run("RecordKNNQuery", func(t *testing.T) {
		before := testutil.ToFloat64(m.KNNQueriesTotal.WithLabelValues("kdtree"))
		m.RecordKNNQuery("kdtree", 5*time.Millisecond)
		m.RecordKNNQuery("kdtree", 1*time.Millisecond)
		if got := testutil.ToFloat64(m.KNNQueriesTotal.WithLabelValues("kdtree")); got != before+2 {
			t.Errorf("expected kdtree query count to grow by 2, got %v -> %v", before, got)
		}

		beforeBF := testutil.ToFloat64(m.KNNQueriesTotal.WithLabelValues("bruteforce"))
		m.RecordKNNQuery("bruteforce", 1*time.Millisecond)
		if got := testutil.ToFloat64(m.KNNQueriesTotal.WithLabelValues("bruteforce")); got != beforeBF+1 {
			t.Errorf("expected bruteforce query count to grow by 1, got %v -> %v", beforeBF, got)
		}
	})

	t.Run("RecordNormalsEstimated", func(t *testing.T) {
		before := testutil.ToFloat64(m.NormalsEstimated)
		m.RecordNormalsEstimated(1)
		m.RecordNormalsEstimated(100)
		if got := testutil.ToFloat64(m.NormalsEstimated); got != before+101 {
			t.Errorf("expected normals-estimated count to grow by 101, got %v -> %v", before, got)
		}
	})

	t.Run("RecordDescriptorExtraction", func(t *testing.T) {
		m.RecordDescriptorExtraction("fpfh", 1, 500*time.Microsecond)
		m.RecordDescriptorExtraction("shot", 200, 5*time.Millisecond)
		m.RecordDescriptorExtraction("spin_image", 50, 2*time.Millisecond)

		if got := testutil.ToFloat64(m.DescriptorsExtracted.WithLabelValues("shot")); got != 200 {
			t.Errorf("expected 200 descriptors extracted for shot, got %v", got)
		}
	})

	t.Run("RecordCorrespondenceGeneration", func(t *testing.T) {
		beforeGen := testutil.ToFloat64(m.CorrespondencesGenerated)
		m.RecordCorrespondenceGeneration(CorrespondenceStats{
			TotalCandidates:    1000,
			RatioTestPassed:    600,
			MutualTestPassed:   400,
			DistanceTestPassed: 350,
		})
		if got := testutil.ToFloat64(m.CorrespondencesGenerated); got != beforeGen+350 {
			t.Errorf("expected correspondences-generated to grow by 350, got %v -> %v", beforeGen, got)
		}

		m.RecordCorrespondenceGeneration(CorrespondenceStats{
			TotalCandidates:    200,
			RatioTestPassed:    180,
			MutualTestPassed:   150,
			DistanceTestPassed: 140,
		})
	})

	t.Run("RecordCoarseRun", func(t *testing.T) {
		m.RecordCoarseRun("ransac", 842, 0.73, 120*time.Millisecond, true)
		m.RecordCoarseRun("ransac", 10000, 0.01, 500*time.Millisecond, false)

		if got := testutil.ToFloat64(m.CoarseRunsTotal.WithLabelValues("ransac", "accepted")); got != 1 {
			t.Errorf("expected 1 accepted ransac run, got %v", got)
		}
		if got := testutil.ToFloat64(m.CoarseRunsTotal.WithLabelValues("ransac", "rejected")); got != 1 {
			t.Errorf("expected 1 rejected ransac run, got %v", got)
		}

		algorithms := []string{"prosac", "4pcs", "super4pcs"}
		for _, algo := range algorithms {
			m.RecordCoarseRun(algo, 500, 0.5, 100*time.Millisecond, true)
		}
	})

	t.Run("RecordFineRun", func(t *testing.T) {
		m.RecordFineRun("gicp", 25, 0.0003, 80*time.Millisecond, true)
		if got := testutil.ToFloat64(m.FineConverged.WithLabelValues("gicp", "true")); got != 1 {
			t.Errorf("expected 1 converged gicp run, got %v", got)
		}

		variants := []string{"point", "plane", "anderson", "ndt"}
		for _, v := range variants {
			m.RecordFineRun(v, 20, 0.001, 50*time.Millisecond, true)
		}
	})

	t.Run("RecordWorkerPoolSubmission", func(t *testing.T) {
		beforeSub := testutil.ToFloat64(m.WorkerPoolSubmissions)
		beforeRej := testutil.ToFloat64(m.WorkerPoolRejected)
		m.RecordWorkerPoolSubmission(false)
		m.RecordWorkerPoolSubmission(true)
		if got := testutil.ToFloat64(m.WorkerPoolSubmissions); got != beforeSub+2 {
			t.Errorf("expected submissions to grow by 2, got %v -> %v", beforeSub, got)
		}
		if got := testutil.ToFloat64(m.WorkerPoolRejected); got != beforeRej+1 {
			t.Errorf("expected rejections to grow by 1, got %v -> %v", beforeRej, got)
		}
	})

	t.Run("UpdateWorkerPoolInFlight", func(t *testing.T) {
		m.UpdateWorkerPoolInFlight(0)
		m.UpdateWorkerPoolInFlight(8)
		m.UpdateWorkerPoolInFlight(4)
		if got := testutil.ToFloat64(m.WorkerPoolInFlight); got != 4 {
			t.Errorf("expected in-flight gauge to overwrite to 4, got %v", got)
		}
	})

	t.Run("UpdateSystemMetrics", func(t *testing.T) {
		m.UpdateGoroutineCount(100)
		m.UpdateMemoryUsage(1024 * 1024 * 512) // 512 MB

		for i := 0; i < 10; i++ {
			m.UpdateGoroutineCount(100 + i*10)
			m.UpdateMemoryUsage(uint64(1024 * 1024 * (500 + i*100)))
		}
		if got := testutil.ToFloat64(m.GoroutinesCount); got != 190 {
			t.Errorf("expected goroutine gauge 190, got %v", got)
		}
	})
}

func TestConcurrentMetricUpdates(t *testing.T) {
	m := sharedMetrics
	done := make(chan bool, 10)

	for i := 0; i < 10; i++ {
		go func(n int) {
			for j := 0; j < 10; j++ {
				m.RecordKNNQuery("kdtree", time.Duration(n+j)*time.Microsecond)
				m.UpdateWorkerPoolInFlight(j)
			}
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

func BenchmarkRecordKNNQuery(b *testing.B) {
	b.Skip("Skipping benchmark due to global metric registry conflicts")
}

func BenchmarkRecordCoarseRun(b *testing.B) {
	b.Skip("Skipping benchmark due to global metric registry conflicts")
}

func BenchmarkConcurrentMetricUpdates(b *testing.B) {
	b.Skip("Skipping benchmark due to global metric registry conflicts")
}
