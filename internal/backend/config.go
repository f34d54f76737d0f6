package backend

import (
	"github.com/raysh454/fastscan/internal/logging"
	"github.com/raysh454/fastscan/internal/webclient"
)

// Config configures the reference backend.
type Config struct {
	// ListenAddr is the HTTP listen address, e.g. ":5000".
	ListenAddr string
	// DBPath is the sqlite file; ":memory:" keeps everything in process.
	DBPath string
	// Fetch configures the outbound web clients. Fetch.Client selects the
	// primary scan backend; chromedp falls back to nethttp on failure.
	Fetch webclient.Config
	// SafeBrowsingKey enables Google Safe Browsing lookups when set.
	SafeBrowsingKey string
	// ScanRate and ScanBurst throttle scans per visitor. Zero disables.
	ScanRate  float64
	ScanBurst int

	Logger logging.Logger

	// Browser and Legacy replace the clients built from Fetch. Tests use them.
	Browser webclient.WebClient
	Legacy  webclient.WebClient
}

func DefaultConfig() Config {
	return Config{
		ListenAddr: ":5000",
		DBPath:     "data/fastscan.db",
		Fetch:      webclient.Config{Client: webclient.ClientNetHTTP},
		ScanRate:   0.5,
		ScanBurst:  5,
	}
}
