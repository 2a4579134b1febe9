package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

// NewRegistry returns a private registry with the speckeeper metrics
// registered on it. Each CLI invocation gets its own, so nothing is shared
// through prometheus.DefaultRegisterer.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	return reg, NewMetrics(reg)
}

// WriteTextfile writes everything g gathers to path in the text exposition
// format, for pickup by a node_exporter textfile collector. An empty path is
// a no-op. The parent directory is created when missing.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	return prometheus.WriteToTextfile(path, g)
}
