// Package logging provides the shared structured logger used across the
// sink and station binaries. It wraps charmbracelet/log the same way the
// rest of the charm-ecosystem tooling this module is built on does.
package logging

import (
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	once    sync.Once
	shared  *log.Logger
	initMux sync.Mutex
)

// Named returns a logger scoped to the given component name (e.g.
// "forwarder", "ingest", "stft"), sharing a single underlying writer and
// level so all components log consistently.
func Named(component string) *log.Logger {
	initMux.Lock()
	defer initMux.Unlock()
	once.Do(func() {
		shared = log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.000",
		})
		if lvl := os.Getenv("KHOLORS_LOG_LEVEL"); lvl != "" {
			if parsed, err := log.ParseLevel(lvl); err == nil {
				shared.SetLevel(parsed)
			}
		}
	})
	return shared.With("component", component)
}
