package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/jon4hz/chartwise/internal/api/auth"
	"github.com/jon4hz/chartwise/internal/api/handler"
	"github.com/jon4hz/chartwise/internal/config"
	"github.com/jon4hz/chartwise/internal/engine"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg       *config.Config
	ginEngine *gin.Engine
	engine    *engine.Engine
	tokens    *auth.JWTProvider
}

func New(cfg *config.Config, e *engine.Engine, debug bool) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if e == nil {
		return nil, fmt.Errorf("engine is required")
	}

	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:       cfg,
		ginEngine: gin.New(),
		engine:    e,
		tokens:    e.Tokens(),
	}
	s.ginEngine.Use(gin.Recovery(), requestLogger())
	s.ginEngine.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	s.ginEngine.Use(gzip.Gzip(gzip.DefaultCompression))

	s.setupRoutes()
	s.setupAdminRoutes()

	return s, nil
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	if len(origins) == 0 || slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	c.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	c.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	return c
}

// requestLogger logs every request through the application logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) setupRoutes() {
	h := handler.New(s.engine, s.cfg)

	s.ginEngine.GET("/health", h.Health)

	api := s.ginEngine.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", h.Register)
	authGroup.POST("/login", h.Login)
	authGroup.POST("/firebase-login", h.FederatedLogin)
	authGroup.POST("/forgot-password", h.ForgotPassword)
	authGroup.POST("/reset-password/:token", h.ResetPassword)

	protected := api.Group("")
	protected.Use(s.tokens.RequireAuth())

	protected.POST("/upload", h.Upload)

	charts := protected.Group("/charts")
	charts.POST("/save", h.SaveChart)
	charts.GET("/history", h.ChartHistory)
	charts.GET("/saved", h.SavedCharts)
	charts.GET("/:id", h.GetChart)
	charts.PUT("/:id", h.UpdateChart)
	charts.DELETE("/:id", h.DeleteChart)

	ai := protected.Group("/ai")
	ai.POST("/summary", h.Summary)
	ai.POST("/insight", h.Insight)
}

func (s *Server) setupAdminRoutes() {
	h := handler.NewAdmin(s.engine)

	adminGroup := s.ginEngine.Group("/api/admin")
	adminGroup.Use(s.tokens.RequireAuth(), s.tokens.RequireAdmin())

	adminGroup.GET("/users", h.ListUsers)
	adminGroup.PUT("/user/:id/role", h.UpdateUserRole)
	adminGroup.PUT("/user/:id/block", h.ToggleUserBlock)
	adminGroup.DELETE("/user/:id", h.DeleteUser)
	adminGroup.GET("/stats", h.Stats)
	adminGroup.GET("/jobs", h.Jobs)
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.ginEngine
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.ginEngine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down API server: %w", err)
	}
	return nil
}
