package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is reported alongside the overall ("") status.
const ServiceName = "growvia.wallet"

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthServer exposes grpc.health.v1 for load balancers and orchestrators.
// Status follows the database: a failed ping flips it to NOT_SERVING.
type HealthServer struct {
	Server   *grpc.Server
	Health   *health.Server
	DB       Pinger
	Interval time.Duration
}

func NewHealthServer(db Pinger, interval time.Duration) *HealthServer {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	s := grpc.NewServer()
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	reflection.Register(s)
	return &HealthServer{Server: s, Health: h, DB: db, Interval: interval}
}

// Check pings the database once and publishes the result.
func (h *HealthServer) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.DB.PingContext(ctx); err != nil {
		logrus.WithError(err).Warn("database ping failed")
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.Health.SetServingStatus("", status)
	h.Health.SetServingStatus(ServiceName, status)
	return status
}

// Monitor re-checks on every tick until ctx is done.
func (h *HealthServer) Monitor(ctx context.Context) {
	h.Check(ctx)
	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.Health.Shutdown()
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

// Start listens on port and serves until Stop is called.
func (h *HealthServer) Start(ctx context.Context, port string) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", port, err)
	}
	go h.Monitor(ctx)
	logrus.WithField("port", port).Info("gRPC health server listening")
	return h.Server.Serve(lis)
}

func (h *HealthServer) Stop() {
	h.Health.Shutdown()
	h.Server.GracefulStop()
}
