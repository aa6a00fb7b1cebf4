// Command pairchat-server starts the pairchat gRPC server.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/pairchat/internal/api"
	"github.com/and161185/pairchat/internal/attachment"
	"github.com/and161185/pairchat/internal/config"
	pkgcrypto "github.com/and161185/pairchat/internal/crypto"
	"github.com/and161185/pairchat/internal/limiter"
	"github.com/and161185/pairchat/internal/message"
	"github.com/and161185/pairchat/internal/realtime"
	grpcserver "github.com/and161185/pairchat/internal/server/grpc"
	"github.com/and161185/pairchat/internal/service"
	"github.com/and161185/pairchat/internal/sweeper"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, opens storage and serves gRPC, metrics and the sweeper until a signal.
func main() {
	cfg, err := config.Load(os.Args[0], os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.String("store", cfg.Store),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer st.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Services
	bus := realtime.NewBus(cfg.Messages.BusBuffer, logger, realtime.NewMetrics(reg))
	lifecycle := message.NewLifecycle(st.chat, message.WithDefaultTTL(cfg.Messages.DefaultTTL))
	inspector := attachment.NewInspector(cfg.Attachments.MaxSize, cfg.Attachments.Allow)
	chatSvc := service.NewConversationService(st.users, st.graph, st.chat, lifecycle, inspector, bus, logger)
	key := []byte(cfg.JWTKey)
	app := grpcserver.New(grpcserver.Services{
		Auth:  service.NewAuthService(st.users, pkgcrypto.NewHasher(pkgcrypto.DefaultParams), key, cfg.AccessTTL, st.limiter),
		Graph: service.NewGraphService(st.users, st.graph, chatSvc.EvictPair),
		Users: service.NewUserService(st.users, st.graph, st.pics,
			attachment.NewInspector(cfg.Attachments.MaxSize, service.PictureTypes)),
		Admin: service.NewAdminService(st.users, service.NewUsernamePolicy(st.users, cfg.Admins)),
		Chat:  chatSvc,
	}, key, logger)

	// gRPC server with interceptors
	rpcMetrics := grpcserver.NewMetrics(reg)
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger),
			rpcMetrics.Unary(),
			app.AuthUnary(api.MethodRegister, api.MethodLogin),
			app.ThrottleUnary(limiter.NewRate(cfg.Limits.SendRPS, cfg.Limits.SendBurst), api.FullMethod(api.MethodSendMessage)),
		),
		grpc.ChainStreamInterceptor(
			grpcserver.RecoverStream(logger),
			grpcserver.LoggingStream(logger),
			rpcMetrics.Stream(),
			app.AuthStream(),
		),
	}
	if cfg.TLS.Cert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLS.Cert, cfg.TLS.Key)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	} else {
		logger.Warn("serving without TLS")
	}
	s := grpc.NewServer(opts...)
	grpcserver.RegisterPairChatServer(s, app)

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if cfg.Dev {
		reflection.Register(s)
	}

	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.Bool("tls", cfg.TLS.Cert != ""))
		return s.Serve(lis)
	})

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		return sweeper.New(st.chat, bus, cfg.Messages.SweepInterval, logger.Named("sweeper")).Run(gctx)
	})

	// Wait for stop
	g.Go(func() error {
		<-gctx.Done()
		hs.Shutdown()
		if metricsSrv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = metricsSrv.Shutdown(sctx)
			cancel()
		}
		// GracefulStop waits for open streams, so end the Join subscriptions first
		logger.Info("closing live rooms", zap.Int("subscriptions", bus.Close()))
		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			s.Stop()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
