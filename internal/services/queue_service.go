package services

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/config"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/models"
)

// IQueueService projects the waiting queue from consultation state. The
// queue has no storage of its own: ordering is derived on every read from
// the consultations collection, oldest first.
type IQueueService interface {
	ListPending(ctx context.Context) ([]models.Consultation, error)
	PositionOf(ctx context.Context, consultationID primitive.ObjectID) (int, error)
	EstimatedWaitMinutes(position int) int
}

// queueService implements IQueueService.
type queueService struct {
	db  *mongo.Database
	cfg *config.Config
}

// NewQueueService creates a new QueueService.
func NewQueueService(db *mongo.Database, cfg *config.Config) IQueueService {
	return &queueService{db: db, cfg: cfg}
}

// queueFilter matches consultations still waiting for a human expert. A
// bot_assisted consultation keeps its place in line.
func queueFilter() bson.M {
	return bson.M{"status": bson.M{"$in": []models.ConsultationStatus{
		models.StatusPending,
		models.StatusBotAssisted,
	}}}
}

// queueSort orders oldest-first, with the id as a stable tie-break for
// identical timestamps.
func queueSort() bson.D {
	return bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
}

// ListPending returns waiting consultations in queue order.
func (s *queueService) ListPending(ctx context.Context) ([]models.Consultation, error) {
	collection := s.db.Collection(consultationsCollection)

	cursor, err := collection.Find(ctx, queueFilter(), options.Find().SetSort(queueSort()))
	if err != nil {
		return nil, storeErr(err, "failed to query consultation queue")
	}
	defer cursor.Close(ctx)

	var consultations []models.Consultation
	if err = cursor.All(ctx, &consultations); err != nil {
		return nil, storeErr(err, "failed to decode consultation queue")
	}
	return consultations, nil
}

// PositionOf returns the 1-based queue position of a waiting consultation.
// A consultation that is not waiting (assigned, finished, or unknown) has no
// position and yields ErrNotFound.
func (s *queueService) PositionOf(ctx context.Context, consultationID primitive.ObjectID) (int, error) {
	queue, err := s.ListPending(ctx)
	if err != nil {
		return 0, err
	}
	for i, c := range queue {
		if c.ID == consultationID {
			return i + 1, nil
		}
	}
	return 0, ErrNotFound
}

// EstimatedWaitMinutes gives a rough wait estimate from a queue position.
func (s *queueService) EstimatedWaitMinutes(position int) int {
	if position < 1 {
		return 0
	}
	return position * s.cfg.EstimatedMinutesPerSlot
}
