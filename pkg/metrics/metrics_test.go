package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	. "github.com/smartystreets/goconvey/convey"
)

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return -1
	}
	return m.GetCounter().GetValue()
}

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created and registered", func() {
				So(manager, ShouldNotBeNil)
				So(manager.Enabled(), ShouldBeTrue)
				So(manager.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithMetricPrefix("x_"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(false),
				WithRefreshInterval(3*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.recomputes.Inc()

			Convey("Then names and labels follow the options", func() {
				So(manager.Enabled(), ShouldBeFalse)
				So(manager.RefreshInterval(), ShouldEqual, 3*time.Second)

				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_unit_x_ranking_recomputes_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "test")
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("Recording score mutations increments counters", func() {
			c := globalManager.scoresSubmitted.WithLabelValues("created")
			before := counterValue(c)
			RecordScoreSubmitted("created")
			So(counterValue(c), ShouldEqual, before+1)
		})

		Convey("Recording never panics", func() {
			So(func() {
				RecordScoreRejected("validation")
				RecordInboundUpdate("duplicate")
				RecordRecompute(1.5)
				RecordRecomputeError()
				RecordSyncPush("mirror", "ok", 2)
				UpdateQueueSize(3)
				UpdateQueueCapacity(10)
				UpdateQueueUtilization(0.3)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				RecordQueueProcessingLatency(1)
				UpdateWorkerCount(4)
				RecordWorkerError()
				RecordWorkerProcessingLatency(1)
				UpdateLiveSubscribers(2)
				RecordLiveMessage()
				RecordLiveDropped()
				RecordHTTPRequest("/api/v1/scores", "POST", "201")
				RecordHTTPRequestDuration("/api/v1/scores", "POST", "201", 12)
				RecordErrorByComponent("api", "validation")
				RecordErrorByType("validation", "low")
				RecordErrorByEndpoint("/api/v1/scores", "POST", "validation")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(10)
				RecordSystemGCPauseTime(0.2)
			}, ShouldNotPanic)
		})

		Convey("The registry is shared", func() {
			So(GetRegistry(), ShouldNotBeNil)
			So(Default(), ShouldEqual, globalManager)
		})
	})
}
