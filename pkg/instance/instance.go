package instance

import "os"

// EnvWorkerID overrides the identifier a worker stamps on the locks it holds.
const EnvWorkerID = "SETTLEMENT_WORKER_ID"

// GetID returns the worker identifier: the override when set, then the
// hostname, then a fixed fallback.
func GetID() string {
	if id := os.Getenv(EnvWorkerID); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
