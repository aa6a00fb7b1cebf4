package grpcserver

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Metrics counts handled RPCs by method and status code.
type Metrics struct {
	Handled  *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewMetrics creates and registers RPC metrics on reg (nil keeps them unregistered).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pairchat", Subsystem: "grpc", Name: "handled_total",
			Help: "RPCs completed, by method and code.",
		}, []string{"method", "code"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pairchat", Subsystem: "grpc", Name: "handling_seconds",
			Help:    "Unary RPC latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
	if reg != nil {
		reg.MustRegister(m.Handled, m.Duration)
	}
	return m
}

// Unary records every unary call.
func (m *Metrics) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		m.Duration.WithLabelValues(info.FullMethod).Observe(time.Since(start).Seconds())
		m.Handled.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
		return resp, err
	}
}

// Stream records every stream once it ends. Streams are long-lived, so no latency.
func (m *Metrics) Stream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		err := next(srv, ss)
		m.Handled.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
		return err
	}
}
