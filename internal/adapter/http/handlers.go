package http

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rpazevedo/escrowflow-backend/internal/domain"
	"github.com/rpazevedo/escrowflow-backend/internal/usecase/admission"
	"github.com/rpazevedo/escrowflow-backend/internal/usecase/lifecycle"
)

type jobRequest struct {
	ScheduleID string `json:"schedule_id"`
	Kind       string `json:"kind"`
	Amount     string `json:"amount"`
}

type batchRequest struct {
	Jobs []jobRequest `json:"jobs"`
}

type jobResponse struct {
	ID         string `json:"id"`
	ScheduleID string `json:"schedule_id,omitempty"`
	Kind       string `json:"kind"`
	Amount     string `json:"amount"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
}

type rejectionResponse struct {
	Kind       string `json:"kind"`
	BusinessID string `json:"business_id,omitempty"`
	Available  string `json:"available"`
	Required   string `json:"required"`
	Shortfall  string `json:"shortfall"`
}

type batchItemResponse struct {
	Admitted bool               `json:"admitted"`
	Job      *jobResponse       `json:"job,omitempty"`
	Error    *fiber.Map         `json:"error,omitempty"`
	Rejected *rejectionResponse `json:"rejection,omitempty"`
}

func toJobResponse(job *domain.Job) *jobResponse {
	resp := &jobResponse{
		ID:        job.ID.String(),
		Kind:      string(job.Kind),
		Amount:    job.Amount.String(),
		Status:    string(job.Status),
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339),
	}
	if job.ScheduleID != uuid.Nil {
		resp.ScheduleID = job.ScheduleID.String()
	}
	return resp
}

func toRejection(ae *domain.AdmissionError) *rejectionResponse {
	resp := &rejectionResponse{
		Kind:      string(ae.Kind),
		Available: ae.Available.String(),
		Required:  ae.Required.String(),
		Shortfall: ae.Shortfall.String(),
	}
	if ae.BusinessID != uuid.Nil {
		resp.BusinessID = ae.BusinessID.String()
	}
	return resp
}

func parseCandidate(req jobRequest) (domain.CandidateJob, error) {
	var candidate domain.CandidateJob

	if req.ScheduleID != "" {
		scheduleID, err := uuid.Parse(req.ScheduleID)
		if err != nil {
			return candidate, errors.New("invalid schedule_id format")
		}
		candidate.ScheduleID = scheduleID
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return candidate, errors.New("invalid amount format")
	}
	candidate.Amount = amount
	candidate.Kind = domain.ScheduleKind(req.Kind)

	if err := candidate.Validate(); err != nil {
		return candidate, err
	}
	return candidate, nil
}

func (s *Server) createJob(c *fiber.Ctx) error {
	var req jobRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}

	candidate, err := parseCandidate(req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	job, err := s.guard.Admit(c.UserContext(), candidate)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toJobResponse(job))
}

func (s *Server) createJobBatch(c *fiber.Ctx) error {
	var req batchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}
	if len(req.Jobs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "jobs must not be empty"})
	}

	candidates := make([]domain.CandidateJob, len(req.Jobs))
	for i, jr := range req.Jobs {
		candidate, err := parseCandidate(jr)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
				"index": i,
			})
		}
		candidates[i] = candidate
	}

	results, err := s.guard.AdmitBatch(c.UserContext(), candidates)
	if err != nil && !anyAdmitted(results) {
		return s.renderError(c, err)
	}

	items := make([]batchItemResponse, len(results))
	for i, res := range results {
		switch {
		case res.Job != nil:
			items[i] = batchItemResponse{Admitted: true, Job: toJobResponse(res.Job)}
		default:
			item := batchItemResponse{Admitted: false}
			if ae, ok := domain.AsAdmissionError(res.Err); ok {
				item.Rejected = toRejection(ae)
			} else if res.Err != nil {
				item.Error = &fiber.Map{"message": res.Err.Error()}
			}
			items[i] = item
		}
	}
	// 207: some candidates may have been admitted while others were
	// rejected; each item carries its own outcome.
	return c.Status(fiber.StatusMultiStatus).JSON(fiber.Map{"results": items})
}

func anyAdmitted(results []admission.BatchResult) bool {
	for _, res := range results {
		if res.Job != nil {
			return true
		}
	}
	return false
}

// transition adapts one lifecycle method into a handler
func (s *Server) transition(fn func(*lifecycle.Service, context.Context, uuid.UUID) (*domain.Job, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		jobID, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid job id"})
		}

		job, err := fn(s.lifecycle, c.UserContext(), jobID)
		if err != nil {
			return s.renderError(c, err)
		}
		return c.JSON(toJobResponse(job))
	}
}

// renderError maps domain errors onto HTTP statuses
func (s *Server) renderError(c *fiber.Ctx, err error) error {
	if ae, ok := domain.AsAdmissionError(err); ok {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"rejection": toRejection(ae),
		})
	}

	switch {
	case errors.Is(err, domain.ErrScheduleNotFound),
		errors.Is(err, domain.ErrBusinessNotFound),
		errors.Is(err, domain.ErrJobNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, domain.ErrStaleTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, domain.ErrLockNotAvailable):
		// Bounded lock wait exhausted: the caller may retry.
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "business busy, retry later"})
	default:
		s.logger.Error("unhandled request error", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}
