package worker

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/soheilhy/cmux"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ShutdownTimeout bounds graceful HTTP shutdown.
const ShutdownTimeout = 10 * time.Second

// Server serves HTTP and gRPC health checks on one listener.
type Server struct {
	svc    *Service
	health *health.Server
	grpc   *grpc.Server
	http   *http.Server
}

// NewServer wraps svc with an HTTP server and a gRPC health service.
func NewServer(svc *Service) *Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{
		svc:    svc,
		health: hs,
		grpc:   gs,
		http: &http.Server{
			Handler:           svc.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// SetReady updates both the HTTP readiness flag and the gRPC health status.
func (s *Server) SetReady(ready bool) {
	s.svc.SetReady(ready)
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}

// Serve accepts connections on l until ctx is canceled. gRPC (HTTP/2 with
// content-type application/grpc) and plain HTTP share the listener.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	m := cmux.New(l)
	grpcL := m.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpL := m.Match(cmux.Any())

	errCh := make(chan error, 3)
	go func() { errCh <- s.grpc.Serve(grpcL) }()
	go func() { errCh <- s.http.Serve(httpL) }()
	go func() { errCh <- m.Serve() }()

	log.Info().Str("addr", l.Addr().String()).Msg("Worker listening")

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	s.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	s.grpc.Stop()
	m.Close()

	if serveErr != nil && !isClosedErr(serveErr) {
		return serveErr
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

func isClosedErr(err error) bool {
	return errors.Is(err, http.ErrServerClosed) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, cmux.ErrListenerClosed) ||
		errors.Is(err, grpc.ErrServerStopped)
}
