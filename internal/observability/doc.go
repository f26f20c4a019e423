// Package observability builds the service logger and the OpenTelemetry
// instruments that count how upstream calls settle (live, cache, failed).
package observability
