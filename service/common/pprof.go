package common

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"
)

type PprofArgs struct {
	PprofPort uint `arg:"--pprof-port,env:PPROF_PORT" default:"6060"`
}

// NewPprofServer serves the standard pprof endpoints under /debug/pprof.
// Ref: https://pkg.go.dev/net/http/pprof
func NewPprofServer(port uint) *http.Server {
	return &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: http.DefaultServeMux}
}
