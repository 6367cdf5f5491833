// Package metrics exposes Prometheus counters for chunk parsing and datagram sends.
package metrics
