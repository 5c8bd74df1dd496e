// Package control expone la superficie de operador del engine por HTTP:
// pausa, reanudación, parada, estado y métricas.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejandrodnm/wxbot/internal/ports"
)

const (
	shutdownTimeout = 5 * time.Second
	commandTimeout  = 10 * time.Second
)

// Server sirve los endpoints de control.
type Server struct {
	addr   string
	ctl    ports.Controller
	router *gin.Engine
}

// NewServer construye el router. gatherer puede ser nil (sin /metrics).
func NewServer(addr string, ctl ports.Controller, gatherer prometheus.Gatherer) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{addr: addr, ctl: ctl, router: r}

	r.GET("/healthz", s.health)
	r.GET("/status", s.status)

	g := r.Group("/control")
	g.POST("/pause", s.command("pause", ctl.Pause))
	g.POST("/resume", s.command("resume", ctl.Resume))
	g.POST("/stop", s.command("stop", ctl.Stop))
	g.POST("/emergency-stop", s.command("emergency-stop", ctl.EmergencyStop))

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return s
}

// Handler devuelve el router (tests).
func (s *Server) Handler() http.Handler { return s.router }

// Start escucha hasta que ctx se cancela y luego apaga con un timeout.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("control: listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("control.Start: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("control.Start: shutdown: %w", err)
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctl.Status())
}

// command ejecuta una orden del operador y devuelve el estado resultante.
func (s *Server) command(name string, fn func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			slog.Warn("control: command failed", "cmd", name, "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		slog.Info("control: command applied", "cmd", name, "remote", c.ClientIP())
		c.JSON(http.StatusOK, s.ctl.Status())
	}
}
