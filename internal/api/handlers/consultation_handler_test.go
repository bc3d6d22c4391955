package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/api/handlers"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/auth"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/models"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/services"
)

func TestConsultationHandler_Submit_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := new(MockConsultationService)
	handler := handlers.NewConsultationHandler(mockSvc, new(MockQueueService), new(MockLedgerService))

	requesterID := primitive.NewObjectID()
	r := gin.New()
	r.POST("/v1/consultation", asUser(requesterID, auth.RoleClaimRequester), handler.Submit)

	expected := &services.SubmitResult{
		Consultation:         &models.Consultation{ID: primitive.NewObjectID(), Status: models.StatusPending},
		QueuePosition:        3,
		EstimatedWaitMinutes: 15,
	}
	mockSvc.On("Submit", mock.Anything, mock.MatchedBy(func(input services.SubmitConsultationInput) bool {
		return input.RequesterID == requesterID && input.PlantName == "Tomato"
	})).Return(expected, nil)

	body, _ := json.Marshal(map[string]interface{}{
		"plant_name": "Tomato",
		"symptoms":   "Brown leaf spots",
		"region":     "North",
		"season":     "Monsoon",
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/consultation", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp services.SubmitResult
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.QueuePosition)
	assert.Equal(t, 15, resp.EstimatedWaitMinutes)
	mockSvc.AssertExpectations(t)
}

func TestConsultationHandler_Submit_MissingFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := handlers.NewConsultationHandler(new(MockConsultationService), new(MockQueueService), new(MockLedgerService))

	r := gin.New()
	r.POST("/v1/consultation", asUser(primitive.NewObjectID(), auth.RoleClaimRequester), handler.Submit)

	body, _ := json.Marshal(map[string]interface{}{"plant_name": "Tomato"}) // no symptoms
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/consultation", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConsultationHandler_Accept_Conflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := new(MockConsultationService)
	handler := handlers.NewConsultationHandler(mockSvc, new(MockQueueService), new(MockLedgerService))

	expertID := primitive.NewObjectID()
	consultationID := primitive.NewObjectID()
	r := gin.New()
	r.POST("/v1/consultation/:id/accept", asUser(expertID, auth.RoleClaimExpert), handler.Accept)

	mockSvc.On("Accept", mock.Anything, consultationID, expertID).Return(nil, services.ErrAlreadyAssigned)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/consultation/"+consultationID.Hex()+"/accept", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "already taken")
	mockSvc.AssertExpectations(t)
}

func TestConsultationHandler_Accept_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := new(MockConsultationService)
	handler := handlers.NewConsultationHandler(mockSvc, new(MockQueueService), new(MockLedgerService))

	expertID := primitive.NewObjectID()
	consultationID := primitive.NewObjectID()
	r := gin.New()
	r.POST("/v1/consultation/:id/accept", asUser(expertID, auth.RoleClaimExpert), handler.Accept)

	accepted := &models.Consultation{ID: consultationID, Status: models.StatusAssigned, ExpertID: &expertID}
	mockSvc.On("Accept", mock.Anything, consultationID, expertID).Return(accepted, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/consultation/"+consultationID.Hex()+"/accept", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp models.Consultation
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.StatusAssigned, resp.Status)
}

func TestConsultationHandler_GetByID_NotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := new(MockConsultationService)
	handler := handlers.NewConsultationHandler(mockSvc, new(MockQueueService), new(MockLedgerService))

	consultationID := primitive.NewObjectID()
	r := gin.New()
	r.GET("/v1/consultation/:id", handler.GetByID)

	mockSvc.On("FindByID", mock.Anything, consultationID).Return(nil, services.ErrNotFound)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/consultation/"+consultationID.Hex(), nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConsultationHandler_GetByID_BadID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := handlers.NewConsultationHandler(new(MockConsultationService), new(MockQueueService), new(MockLedgerService))

	r := gin.New()
	r.GET("/v1/consultation/:id", handler.GetByID)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/consultation/not-an-id", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConsultationHandler_GetPosition(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockQueue := new(MockQueueService)
	handler := handlers.NewConsultationHandler(new(MockConsultationService), mockQueue, new(MockLedgerService))

	consultationID := primitive.NewObjectID()
	r := gin.New()
	r.GET("/v1/consultation/:id/position", handler.GetPosition)

	mockQueue.On("PositionOf", mock.Anything, consultationID).Return(2, nil)
	mockQueue.On("EstimatedWaitMinutes", 2).Return(10)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/consultation/"+consultationID.Hex()+"/position", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]int
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp["position"])
	assert.Equal(t, 10, resp["estimated_wait_minutes"])
}

func TestConsultationHandler_GetQueue_StoreDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockQueue := new(MockQueueService)
	handler := handlers.NewConsultationHandler(new(MockConsultationService), mockQueue, new(MockLedgerService))

	r := gin.New()
	r.GET("/v1/queue", handler.GetQueue)

	mockQueue.On("ListPending", mock.Anything).Return([]models.Consultation(nil), services.ErrDependencyUnavailable)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/queue", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestConsultationHandler_Rate_InvalidTransition(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := new(MockConsultationService)
	handler := handlers.NewConsultationHandler(mockSvc, new(MockQueueService), new(MockLedgerService))

	requesterID := primitive.NewObjectID()
	consultationID := primitive.NewObjectID()
	r := gin.New()
	r.POST("/v1/consultation/:id/rate", asUser(requesterID, auth.RoleClaimRequester), handler.Rate)

	mockSvc.On("Rate", mock.Anything, consultationID, requesterID, 5, "great").Return(nil, services.ErrInvalidTransition)

	body, _ := json.Marshal(map[string]interface{}{"rating": 5, "feedback": "great"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/consultation/"+consultationID.Hex()+"/rate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestConsultationHandler_MarkCollected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockLedger := new(MockLedgerService)
	handler := handlers.NewConsultationHandler(new(MockConsultationService), new(MockQueueService), mockLedger)

	expertID := primitive.NewObjectID()
	consultationID := primitive.NewObjectID()
	r := gin.New()
	r.POST("/v1/consultation/:id/collect", asUser(expertID, auth.RoleClaimExpert), handler.MarkCollected)

	collected := &models.Consultation{ID: consultationID, Status: models.StatusCompleted, CollectionStatus: models.CollectionCollected}
	mockLedger.On("MarkCollected", mock.Anything, consultationID).Return(collected, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/consultation/"+consultationID.Hex()+"/collect", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp models.Consultation
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.CollectionCollected, resp.CollectionStatus)
}

func TestConsultationHandler_ExpertEarnings(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockLedger := new(MockLedgerService)
	handler := handlers.NewConsultationHandler(new(MockConsultationService), new(MockQueueService), mockLedger)

	expertID := primitive.NewObjectID()
	r := gin.New()
	r.GET("/v1/expert/earnings", asUser(expertID, auth.RoleClaimExpert), handler.ExpertEarnings)

	summary := &services.EarningsSummary{ExpertID: expertID, CompletedCount: 2, TotalEarnings: 278, Collected: 139, Pending: 139}
	mockLedger.On("EarningsSummary", mock.Anything, expertID).Return(summary, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/expert/earnings", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp services.EarningsSummary
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(278), resp.TotalEarnings)
}
