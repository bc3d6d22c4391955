package handlers_test

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/api/middleware"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/models"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/services"
)

// --- Mocks ---

// MockConsultationService
type MockConsultationService struct {
	mock.Mock
}

func (m *MockConsultationService) Submit(ctx context.Context, input services.SubmitConsultationInput) (*services.SubmitResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SubmitResult), args.Error(1)
}

func (m *MockConsultationService) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Consultation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Consultation), args.Error(1)
}

func (m *MockConsultationService) Accept(ctx context.Context, consultationID, expertID primitive.ObjectID) (*models.Consultation, error) {
	args := m.Called(ctx, consultationID, expertID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Consultation), args.Error(1)
}

func (m *MockConsultationService) Complete(ctx context.Context, consultationID, expertID primitive.ObjectID) (*models.Consultation, error) {
	args := m.Called(ctx, consultationID, expertID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Consultation), args.Error(1)
}

func (m *MockConsultationService) Cancel(ctx context.Context, consultationID, requesterID primitive.ObjectID) (*models.Consultation, error) {
	args := m.Called(ctx, consultationID, requesterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Consultation), args.Error(1)
}

func (m *MockConsultationService) Rate(ctx context.Context, consultationID, requesterID primitive.ObjectID, rating int, feedback string) (*models.Consultation, error) {
	args := m.Called(ctx, consultationID, requesterID, rating, feedback)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Consultation), args.Error(1)
}

func (m *MockConsultationService) SetAmount(ctx context.Context, consultationID primitive.ObjectID, amount int64) (*models.Consultation, error) {
	args := m.Called(ctx, consultationID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Consultation), args.Error(1)
}

func (m *MockConsultationService) ListByRequester(ctx context.Context, requesterID primitive.ObjectID) ([]models.Consultation, error) {
	args := m.Called(ctx, requesterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Consultation), args.Error(1)
}

func (m *MockConsultationService) ActiveForExpert(ctx context.Context, expertID primitive.ObjectID) ([]models.Consultation, error) {
	args := m.Called(ctx, expertID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Consultation), args.Error(1)
}

// MockQueueService
type MockQueueService struct {
	mock.Mock
}

func (m *MockQueueService) ListPending(ctx context.Context) ([]models.Consultation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Consultation), args.Error(1)
}

func (m *MockQueueService) PositionOf(ctx context.Context, consultationID primitive.ObjectID) (int, error) {
	args := m.Called(ctx, consultationID)
	return args.Int(0), args.Error(1)
}

func (m *MockQueueService) EstimatedWaitMinutes(position int) int {
	args := m.Called(position)
	return args.Int(0)
}

// MockLedgerService
type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) Split(amount int64) (int64, int64) {
	args := m.Called(amount)
	return args.Get(0).(int64), args.Get(1).(int64)
}

func (m *MockLedgerService) MarkCollected(ctx context.Context, consultationID primitive.ObjectID) (*models.Consultation, error) {
	args := m.Called(ctx, consultationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Consultation), args.Error(1)
}

func (m *MockLedgerService) EarningsSummary(ctx context.Context, expertID primitive.ObjectID) (*services.EarningsSummary, error) {
	args := m.Called(ctx, expertID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.EarningsSummary), args.Error(1)
}

// MockMessageService
type MockMessageService struct {
	mock.Mock
}

func (m *MockMessageService) PostMessage(ctx context.Context, consultationID, senderID primitive.ObjectID, text string) (*models.Message, error) {
	args := m.Called(ctx, consultationID, senderID, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockMessageService) ListByConsultation(ctx context.Context, consultationID primitive.ObjectID) ([]models.Message, error) {
	args := m.Called(ctx, consultationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockMessageService) MarkRead(ctx context.Context, consultationID, readerID primitive.ObjectID) (int64, error) {
	args := m.Called(ctx, consultationID, readerID)
	return args.Get(0).(int64), args.Error(1)
}

// --- Helpers ---

// asUser injects an authenticated identity the way AuthMiddleware would.
func asUser(userID primitive.ObjectID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, userID.Hex())
		c.Set(middleware.ContextKeyRole, role)
		c.Next()
	}
}
