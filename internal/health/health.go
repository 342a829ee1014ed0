// Package health wraps github.com/soulteary/health-kit to report process
// liveness and the resolved storage path's availability, backing GET /health.
package health

import (
	"os"

	healthkit "github.com/soulteary/health-kit"
)

// Checker reports process and storage liveness for the health endpoint.
type Checker struct {
	StorageRoot string
	registry    *healthkit.Registry
}

// New constructs a Checker backed by storageRoot, registering the checks
// health-kit will run on each GET /health.
func New(storageRoot string) *Checker {
	c := &Checker{StorageRoot: storageRoot, registry: healthkit.NewRegistry()}
	c.registry.Register("storage", c.checkStorage)
	return c
}

// Status is the JSON body GET /health returns.
type Status struct {
	Status      string            `json:"status"`
	StorageRoot string            `json:"storage_root"`
	Checks      map[string]string `json:"checks"`
}

// Check runs every registered health-kit check and summarizes the result.
func (c *Checker) Check() Status {
	results := c.registry.RunAll()

	status := "ok"
	checks := make(map[string]string, len(results))
	for name, err := range results {
		if err != nil {
			status = "degraded"
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	return Status{Status: status, StorageRoot: c.StorageRoot, Checks: checks}
}

func (c *Checker) checkStorage() error {
	info, err := os.Stat(c.StorageRoot)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return os.ErrInvalid
	}
	return nil
}
