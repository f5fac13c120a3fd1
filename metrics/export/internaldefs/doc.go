// Package internaldefs is the single list of exported metric names shared by
// the Prometheus and OTel exporters, together with the latency bucket bounds
// and the Source interface both exporters read from.
//
// It performs no I/O and imports no exporter package.
package internaldefs
