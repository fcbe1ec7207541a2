// Package http exposes the admission guard and job lifecycle over a
// small JSON API. This is the single integration point where
// disbursement jobs are constructed; everything it does goes through
// the guard.
package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"

	"github.com/rpazevedo/escrowflow-backend/internal/usecase/admission"
	"github.com/rpazevedo/escrowflow-backend/internal/usecase/lifecycle"
)

// Server wires the HTTP routes to the use cases
type Server struct {
	guard     *admission.Guard
	lifecycle *lifecycle.Service
	logger    *zap.Logger
	app       *fiber.App
}

// NewServer creates the fiber application with all routes registered
func NewServer(guard *admission.Guard, lc *lifecycle.Service, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "escrowflow",
		DisableStartupMessage: true,
	})
	app.Use(logger.New())

	s := &Server{guard: guard, lifecycle: lc, logger: log, app: app}

	app.Get("/healthz", s.health)

	v1 := app.Group("/v1")
	v1.Post("/jobs", s.createJob)
	v1.Post("/jobs/batch", s.createJobBatch)
	v1.Post("/jobs/:id/claim", s.transition((*lifecycle.Service).Claim))
	v1.Post("/jobs/:id/complete", s.transition((*lifecycle.Service).Complete))
	v1.Post("/jobs/:id/fail", s.transition((*lifecycle.Service).Fail))
	v1.Post("/jobs/:id/cancel", s.transition((*lifecycle.Service).Cancel))

	return s
}

// App exposes the underlying fiber app, mainly for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen blocks serving HTTP on addr
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
