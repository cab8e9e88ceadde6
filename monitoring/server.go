package monitoring

import (
	"context"
	"errors"
	"net/http"
	"time"

	"raffle-system/utils"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// OpsServer exposes the Prometheus scrape endpoint and health probes on a
// separate port, away from the public API.
type OpsServer struct {
	server *http.Server
	redis  *redis.Client
}

func NewOpsServer(port string, redisClient *redis.Client) *OpsServer {
	s := &OpsServer{redis: redisClient}

	e := echo.New()
	e.GET("/metrics", func(c echo.Context) error {
		promhttp.Handler().ServeHTTP(c.Response(), c.Request())
		return nil
	})
	e.GET("/healthz", s.health)

	s.server = &http.Server{
		Addr:              ":" + port,
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *OpsServer) health(c echo.Context) error {
	if s.redis != nil {
		if err := utils.RedisHealthCheck(s.redis); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *OpsServer) Start() error {
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *OpsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
