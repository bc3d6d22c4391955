package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/api/middleware"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/services"
)

// ConsultationHandler handles REST requests for consultations.
type ConsultationHandler struct {
	consultationService services.IConsultationService
	queueService        services.IQueueService
	ledgerService       services.ILedgerService
}

// NewConsultationHandler creates a new ConsultationHandler.
func NewConsultationHandler(consultationService services.IConsultationService, queueService services.IQueueService, ledgerService services.ILedgerService) *ConsultationHandler {
	return &ConsultationHandler{
		consultationService: consultationService,
		queueService:        queueService,
		ledgerService:       ledgerService,
	}
}

// callerID extracts the authenticated user's id set by the auth middleware.
func callerID(c *gin.Context) (primitive.ObjectID, bool) {
	raw, exists := c.Get(middleware.ContextKeyUserID)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(raw.(string))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID in token"})
		return primitive.NilObjectID, false
	}
	return id, true
}

// pathConsultationID parses the :id path parameter.
func pathConsultationID(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid consultation ID format"})
		return primitive.NilObjectID, false
	}
	return id, true
}

// respondServiceError maps service errors to HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Consultation not found"})
	case errors.Is(err, services.ErrAlreadyAssigned):
		c.JSON(http.StatusConflict, gin.H{"error": "Consultation already taken by another expert"})
	case errors.Is(err, services.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrDependencyUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "A required service is unavailable"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

// submitRequest is the POST /v1/consultation body.
type submitRequest struct {
	PlantName      string   `json:"plant_name" binding:"required"`
	Symptoms       string   `json:"symptoms" binding:"required"`
	DiagnosisID    string   `json:"diagnosis_id"`
	DiagnosisLabel string   `json:"diagnosis_label"`
	Region         string   `json:"region"`
	Season         string   `json:"season"`
	ImageURLs      []string `json:"image_urls"`
	Amount         int64    `json:"amount"`
}

// Submit handles POST /v1/consultation
func (h *ConsultationHandler) Submit(c *gin.Context) {
	requesterID, ok := callerID(c)
	if !ok {
		return
	}

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	input := services.SubmitConsultationInput{
		RequesterID:    requesterID,
		PlantName:      req.PlantName,
		Symptoms:       req.Symptoms,
		DiagnosisLabel: req.DiagnosisLabel,
		Region:         req.Region,
		Season:         req.Season,
		ImageURLs:      req.ImageURLs,
		Amount:         req.Amount,
	}
	if req.DiagnosisID != "" {
		diagnosisID, err := primitive.ObjectIDFromHex(req.DiagnosisID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid diagnosis ID format"})
			return
		}
		input.DiagnosisID = &diagnosisID
	}

	result, err := h.consultationService.Submit(c.Request.Context(), input)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// GetByID handles GET /v1/consultation/:id
func (h *ConsultationHandler) GetByID(c *gin.Context) {
	id, ok := pathConsultationID(c)
	if !ok {
		return
	}

	consultation, err := h.consultationService.FindByID(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, consultation)
}

// GetQueue handles GET /v1/queue
func (h *ConsultationHandler) GetQueue(c *gin.Context) {
	pending, err := h.queueService.ListPending(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": pending, "count": len(pending)})
}

// GetPosition handles GET /v1/consultation/:id/position
func (h *ConsultationHandler) GetPosition(c *gin.Context) {
	id, ok := pathConsultationID(c)
	if !ok {
		return
	}

	position, err := h.queueService.PositionOf(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"position":               position,
		"estimated_wait_minutes": h.queueService.EstimatedWaitMinutes(position),
	})
}

// Accept handles POST /v1/consultation/:id/accept
func (h *ConsultationHandler) Accept(c *gin.Context) {
	expertID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathConsultationID(c)
	if !ok {
		return
	}

	consultation, err := h.consultationService.Accept(c.Request.Context(), id, expertID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, consultation)
}

// Complete handles POST /v1/consultation/:id/complete
func (h *ConsultationHandler) Complete(c *gin.Context) {
	expertID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathConsultationID(c)
	if !ok {
		return
	}

	consultation, err := h.consultationService.Complete(c.Request.Context(), id, expertID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, consultation)
}

// Cancel handles POST /v1/consultation/:id/cancel
func (h *ConsultationHandler) Cancel(c *gin.Context) {
	requesterID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathConsultationID(c)
	if !ok {
		return
	}

	consultation, err := h.consultationService.Cancel(c.Request.Context(), id, requesterID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, consultation)
}

// rateRequest is the POST /v1/consultation/:id/rate body.
type rateRequest struct {
	Rating   int    `json:"rating" binding:"required"`
	Feedback string `json:"feedback"`
}

// Rate handles POST /v1/consultation/:id/rate
func (h *ConsultationHandler) Rate(c *gin.Context) {
	requesterID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathConsultationID(c)
	if !ok {
		return
	}

	var req rateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	consultation, err := h.consultationService.Rate(c.Request.Context(), id, requesterID, req.Rating, req.Feedback)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, consultation)
}

// amountRequest is the PUT /v1/consultation/:id/amount body.
type amountRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// SetAmount handles PUT /v1/consultation/:id/amount
func (h *ConsultationHandler) SetAmount(c *gin.Context) {
	id, ok := pathConsultationID(c)
	if !ok {
		return
	}

	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	consultation, err := h.consultationService.SetAmount(c.Request.Context(), id, req.Amount)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, consultation)
}

// MyConsultations handles GET /v1/my/consultations
func (h *ConsultationHandler) MyConsultations(c *gin.Context) {
	requesterID, ok := callerID(c)
	if !ok {
		return
	}

	consultations, err := h.consultationService.ListByRequester(c.Request.Context(), requesterID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": consultations})
}

// ExpertConsultations handles GET /v1/expert/consultations
func (h *ConsultationHandler) ExpertConsultations(c *gin.Context) {
	expertID, ok := callerID(c)
	if !ok {
		return
	}

	consultations, err := h.consultationService.ActiveForExpert(c.Request.Context(), expertID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": consultations})
}

// MarkCollected handles POST /v1/consultation/:id/collect
func (h *ConsultationHandler) MarkCollected(c *gin.Context) {
	id, ok := pathConsultationID(c)
	if !ok {
		return
	}

	consultation, err := h.ledgerService.MarkCollected(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, consultation)
}

// ExpertEarnings handles GET /v1/expert/earnings
func (h *ConsultationHandler) ExpertEarnings(c *gin.Context) {
	expertID, ok := callerID(c)
	if !ok {
		return
	}

	summary, err := h.ledgerService.EarningsSummary(c.Request.Context(), expertID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
