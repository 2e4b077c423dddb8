// Package otel publishes goBankAuth engine metrics through an OpenTelemetry
// Meter.
//
// Counters are grouped into one instrument per family, such as
// gobankauth.login or gobankauth.verification.codes, with an "outcome"
// attribute per engine counter. Login latency is a gauge keyed by an "le"
// attribute holding cumulative bucket counts. A single callback reads the
// engine snapshot per collection. The caller owns the MeterProvider.
package otel
