// Package metrics aggregates latency and failure statistics for API calls
// and for the token guard's login and refresh round-trips.
//
// [Collector] keeps an HDR histogram of latencies plus counts of errors by
// type and by HTTP status:
//
//	collector := metrics.NewCollector()
//	collector.RecordRequest(latency, err)
//	stats := collector.Stats(elapsed)
//
// [AuthRecorder] satisfies the guard's recorder contract. It keeps one
// Collector per operation and an atomic cache-hit counter, so reporting a
// cached token never takes a lock.
package metrics
