// Package api provides the operational HTTP API. It is a read-mostly
// surface for dashboards and debugging; the agent-facing control plane
// lives on the MCP server.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	v1 "drydock/internal/api/v1"
	"drydock/internal/config"
	"drydock/internal/db"
	"drydock/internal/db/repositories"
	"drydock/internal/logging"
	"drydock/internal/services"
)

type Server struct {
	cfg        *config.Config
	db         db.Database
	httpServer *http.Server
	repos      *repositories.Repositories
	lifecycle  *services.LifecycleService
}

func New(cfg *config.Config, database db.Database, lifecycle *services.LifecycleService) *Server {
	return &Server{
		cfg:       cfg,
		db:        database,
		repos:     repositories.New(database),
		lifecycle: lifecycle,
	}
}

// Router builds the gin engine without binding a listener, so tests can
// drive it through httptest.
func (s *Server) Router() *gin.Engine {
	if !s.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/health", s.healthCheck)

	group := router.Group("/api/v1")
	handlers := v1.NewAPIHandlers(s.repos, s.lifecycle)
	handlers.RegisterRoutes(group)

	return router
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.APIPort),
		Handler: s.Router(),
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("API server error: %v", err)
		}
	}()
	logging.Info("API server listening on :%d", s.cfg.APIPort)

	<-ctx.Done()

	logging.Info("Shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "drydock-api",
		"version": "1.0.0",
	})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
