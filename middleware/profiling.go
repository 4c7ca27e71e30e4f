package middleware

import (
	"github.com/grafana/pyroscope-go"

	"github.com/duynhne/mc-profile-service/config"
)

var profiler *pyroscope.Profiler

// InitProfiling starts Pyroscope continuous profiling.
func InitProfiling(cfg config.ProfilingConfig, svc config.ServiceConfig) error {
	name, namespace := serviceIdentity(svc)
	if cfg.ServiceName != "" && cfg.ServiceName != "unknown" {
		name = cfg.ServiceName
	}

	var err error
	profiler, err = pyroscope.Start(pyroscope.Config{
		ApplicationName: name,
		ServerAddress:   cfg.Endpoint,
		Tags: map[string]string{
			"service":   name,
			"namespace": namespace,
			"version":   svc.Version,
		},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
			pyroscope.ProfileMutexCount,
			pyroscope.ProfileMutexDuration,
		},
		Logger: pyroscope.StandardLogger,
	})
	return err
}

// StopProfiling stops Pyroscope profiling
func StopProfiling() {
	if profiler != nil {
		_ = profiler.Stop()
	}
}
