// Package server implements the optional HTTP status endpoint of the sender.
// It reports transfer progress, the parsed audio format and the effective
// configuration, and serves Prometheus metrics for scraping during a run.
package server
