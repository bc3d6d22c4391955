package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/services"
)

// MessageHandler handles REST requests for consultation chat threads.
type MessageHandler struct {
	messageService services.IMessageService
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(messageService services.IMessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

// postMessageRequest is the POST /v1/consultation/:id/message body.
type postMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// Post handles POST /v1/consultation/:id/message
func (h *MessageHandler) Post(c *gin.Context) {
	senderID, ok := callerID(c)
	if !ok {
		return
	}
	consultationID, ok := pathConsultationID(c)
	if !ok {
		return
	}

	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	message, err := h.messageService.PostMessage(c.Request.Context(), consultationID, senderID, req.Text)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

// List handles GET /v1/consultation/:id/message
func (h *MessageHandler) List(c *gin.Context) {
	consultationID, ok := pathConsultationID(c)
	if !ok {
		return
	}

	messages, err := h.messageService.ListByConsultation(c.Request.Context(), consultationID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": messages})
}

// MarkRead handles POST /v1/consultation/:id/message/read
func (h *MessageHandler) MarkRead(c *gin.Context) {
	readerID, ok := callerID(c)
	if !ok {
		return
	}
	consultationID, ok := pathConsultationID(c)
	if !ok {
		return
	}

	marked, err := h.messageService.MarkRead(c.Request.Context(), consultationID, readerID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked_read": marked})
}
