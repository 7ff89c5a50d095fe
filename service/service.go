// Package service runs the HTTP endpoints of a long-running isolator: health
// checks and Prometheus metrics.
package service

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-isolator/metrics"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = "8080"

	MetricsHost = "0.0.0.0"
	MetricsPort = "7300"
)

type Config struct {
	Log         log.Logger
	HealthzAddr string
	MetricsAddr string
}

type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer
	config  Config
}

func New(cfg Config) *Service {
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	if cfg.HealthzAddr == "" {
		cfg.HealthzAddr = net.JoinHostPort(HealthzHost, HealthzPort)
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = net.JoinHostPort(MetricsHost, MetricsPort)
	}
	return &Service{
		Healthz: &HealthzServer{Log: cfg.Log},
		Metrics: &MetricsServer{},
		config:  cfg,
	}
}

func (s *Service) Start(ctx context.Context) {
	l := s.config.Log
	l.Info("service starting")

	go func() {
		l.Info("starting healthz server", "addr", s.config.HealthzAddr)
		if err := s.Healthz.Start(ctx, s.config.HealthzAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("error starting healthz server", "err", err)
			metrics.RecordErrorDetails("error starting healthz server", err)
		}
	}()

	go func() {
		l.Info("starting metrics server", "addr", s.config.MetricsAddr)
		if err := s.Metrics.Start(ctx, s.config.MetricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("error starting metrics server", "err", err)
			metrics.RecordErrorDetails("error starting metrics server", err)
		}
	}()

	l.Info("service started")
}

func (s *Service) Shutdown() {
	l := s.config.Log
	l.Info("service shutting down")

	_ = s.Healthz.Shutdown()
	l.Info("healthz stopped")

	_ = s.Metrics.Shutdown()
	l.Info("metrics stopped")

	l.Info("service stopped")
}
