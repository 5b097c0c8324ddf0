package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func familyNames(reg *prometheus.Registry) map[string]bool {
	families, err := reg.Gather()
	So(err, ShouldBeNil)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created enabled with the default refresh interval", func() {
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
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(false),
				WithRefreshInterval(3*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.pairsPresented.WithLabelValues("1", "exploit").Inc()

			Convey("Then the options should be applied", func() {
				So(manager.Enabled(), ShouldBeFalse)
				So(manager.RefreshInterval(), ShouldEqual, 3*time.Second)

				families, err := registry.Gather()
				So(err, ShouldBeNil)
				var found bool
				for _, mf := range families {
					if mf.GetName() != "test_unit_pairs_presented_total" {
						continue
					}
					found = true
					labels := map[string]string{}
					for _, lp := range mf.GetMetric()[0].GetLabel() {
						labels[lp.GetName()] = lp.GetValue()
					}
					So(labels["env"], ShouldEqual, "test")
					So(labels["path"], ShouldEqual, "exploit")
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When creating with empty or invalid option values", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithCustomLabels(nil),
				WithRefreshInterval(-1*time.Second),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults should be kept", func() {
				So(manager.namespace, ShouldEqual, "duel")
				So(manager.subsystem, ShouldEqual, "discovery")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
				So(manager.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording discovery and tournament metrics", func() {
			So(func() {
				RecordPairPresented("1", "exploit")
				RecordPairPresented("1", "explore")
				RecordPairPresented("2", "tournament")
				RecordVote("1", "choice")
				RecordVote("1", "neither")
				RecordSessionCompleted("1")
				RecordLongestStreak(2)
				RecordEligibleSetSize(4)
				UpdateCandidatePoolSize(12)
				RecordCandidateCreated("generated")
				RecordInvalidRoundState()
				RecordTokenReplay()
			}, ShouldNotPanic)

			Convey("Then the families should be exposed on the custom registry", func() {
				names := familyNames(GetRegistry())
				So(names["duel_discovery_pairs_presented_total"], ShouldBeTrue)
				So(names["duel_discovery_votes_recorded_total"], ShouldBeTrue)
				So(names["duel_discovery_tournament_longest_streak"], ShouldBeTrue)
				So(names["duel_discovery_candidate_pool_size"], ShouldBeTrue)
			})
		})

		Convey("When recording generator metrics", func() {
			So(func() {
				RecordGeneratorRequest("openai", "success", 120)
				RecordGeneratorRequest("openai", "timeout", 5000)
				RecordGeneratorFallback("timeout")
				RecordGeneratorTokens("openai", 50, 12)
				RecordGeneratorTokens("openai", 0, 0)
				RecordGeneratorRetry("openai")
				UpdateCircuitState("openai", 2)
			}, ShouldNotPanic)

			Convey("Then generator families should be exposed", func() {
				names := familyNames(GetRegistry())
				So(names["duel_discovery_generator_requests_total"], ShouldBeTrue)
				So(names["duel_discovery_generator_fallbacks_total"], ShouldBeTrue)
				So(names["duel_discovery_generator_circuit_state"], ShouldBeTrue)
			})
		})

		Convey("When recording repository, HTTP, error and system metrics", func() {
			So(func() {
				RecordRepositoryUpdateLatency(0.4)
				RecordRepositoryQueryLatency(0.2)
				RecordRepositorySnapshot(12.5)
				RecordHTTPRequest("/pair", "GET", "200")
				RecordHTTPRequestDuration("/pair", "GET", "200", 3.2)
				RecordErrorByComponent("selector", "generator")
				RecordErrorByEndpoint("/choices", "POST", "stale_token")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)

			Convey("Then the snapshot counter family should be exposed", func() {
				names := familyNames(GetRegistry())
				So(names["duel_discovery_repository_snapshot_count_total"], ShouldBeTrue)
				So(names["duel_discovery_http_requests_total"], ShouldBeTrue)
			})
		})

		Convey("When recording with empty label values", func() {
			So(func() {
				RecordHTTPRequest("", "", "200")
				RecordErrorByComponent("", "")
				RecordErrorByEndpoint("", "", "")
				RecordPairPresented("", "")
			}, ShouldNotPanic)
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given metrics concurrency", t, func() {
		Convey("When recording metrics concurrently", func() {
			done := make(chan bool, 10)

			for i := 0; i < 10; i++ {
				go func() {
					for j := 0; j < 100; j++ {
						RecordVote("2", "choice")
						UpdateCandidatePoolSize(j)
						RecordGeneratorRequest("anthropic", "success", float64(j))
						RecordHTTPRequest("/choices", "POST", "200")
					}
					done <- true
				}()
			}

			for i := 0; i < 10; i++ {
				<-done
			}

			Convey("Then it should handle concurrent access without panics", func() {
				So(true, ShouldBeTrue)
			})
		})
	})
}
