package common

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"vellum/hangar"

	"github.com/heptiolabs/healthcheck"
)

type HealthCheckArgs struct {
	HealthPort uint `arg:"--health-port,env:HEALTH_PORT" default:"8082"`
}

// NewHealthCheckServer serves /live and /ready on port. The server is ready
// only while every readiness check passes.
func NewHealthCheckServer(port uint, readiness map[string]healthcheck.Check) *http.Server {
	health := healthcheck.NewHandler()
	for name, check := range readiness {
		health.AddReadinessCheck(name, check)
	}
	return &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: health}
}

// StoreReadinessCheck fails when the store cannot serve a read within
// timeout.
func StoreReadinessCheck(reader hangar.Reader, timeout time.Duration) healthcheck.Check {
	return healthcheck.Timeout(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_, err := reader.Scan(ctx, hangar.ScanRequest{Limit: 1})
		return err
	}, timeout)
}
