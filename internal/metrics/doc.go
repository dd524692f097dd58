// Package metrics reduces virtual player outcomes into scenario results.
//
// A Recorder counts outcomes as they arrive, the way a live dashboard would,
// and forwards them to an optional Prometheus Exporter. Reduce turns the full
// list of outcomes into an immutable Result: terminal bucket counts, success
// and match rates, latency and wait statistics, rating-difference accuracy,
// per-bucket match rates with their fairness variance, per-burst summaries and
// diagnostic probe pass rates.
//
// # Basic Usage
//
//	rec := metrics.New("load-burst")
//	orch.Observe(rec.Record)
//	run, _ := orch.Run(ctx)
//
//	result := metrics.Reduce("load-burst", run.Outcomes)
//	if err := result.CheckInvariant(); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("success: %.2f, mean rating diff: %.1f\n",
//	    result.SuccessRate, result.RatingDiff.Mean)
//
// # Prometheus
//
//	exp, err := metrics.NewExporter(prometheus.DefaultRegisterer)
//	rec.SetExporter(exp)
//
// Standard deviations are population standard deviations.
package metrics
