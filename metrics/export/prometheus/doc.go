// Package prometheus exports goBankAuth engine metrics as a
// client_golang prometheus.Collector.
//
// Counters are published as gobankauth_*_total and the login latency
// histogram as gobankauth_login_latency_seconds. The collector reads
// [goBankAuth.Engine.MetricsSnapshot] on every scrape; register it with
// whichever registry backs the /metrics handler.
package prometheus
