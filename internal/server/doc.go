// Package server implements the HTTP API of the sound classifier: the
// /predict endpoint plus health, configuration, statistics and Prometheus
// metrics endpoints.
package server
