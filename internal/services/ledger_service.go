package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/config"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/models"
)

// ILedgerService derives the platform/expert revenue split and tracks
// payout collection for completed consultations.
type ILedgerService interface {
	Split(amount int64) (platformShare, expertShare int64)
	MarkCollected(ctx context.Context, consultationID primitive.ObjectID) (*models.Consultation, error)
	EarningsSummary(ctx context.Context, expertID primitive.ObjectID) (*EarningsSummary, error)
}

// EarningsSummary aggregates an expert's completed-consultation earnings by
// collection state.
type EarningsSummary struct {
	ExpertID       primitive.ObjectID `json:"expert_id"`
	CompletedCount int                `json:"completed_count"`
	TotalEarnings  int64              `json:"total_earnings"`
	Collected      int64              `json:"collected"`
	Pending        int64              `json:"pending"`
}

// ledgerService implements ILedgerService.
type ledgerService struct {
	db  *mongo.Database
	cfg *config.Config
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(db *mongo.Database, cfg *config.Config) ILedgerService {
	return &ledgerService{db: db, cfg: cfg}
}

// SplitAmount divides amount between the platform and the expert at the
// given platform rate, rounding each share half away from zero. Because both
// shares are rounded independently their sum may differ from amount by at
// most one currency unit; that residual is accepted, not corrected.
func SplitAmount(amount int64, platformRate float64) (platformShare, expertShare int64) {
	platformShare = int64(math.Round(float64(amount) * platformRate))
	expertShare = int64(math.Round(float64(amount) * (1 - platformRate)))
	return platformShare, expertShare
}

// Split applies the configured commission rate to amount.
func (s *ledgerService) Split(amount int64) (int64, int64) {
	return SplitAmount(amount, s.cfg.PlatformCommissionRate)
}

// MarkCollected records that the expert's share of a completed consultation
// has been paid out. Only completed consultations are eligible; calling it
// again on an already-collected consultation is a no-op success.
func (s *ledgerService) MarkCollected(ctx context.Context, consultationID primitive.ObjectID) (*models.Consultation, error) {
	collection := s.db.Collection(consultationsCollection)
	now := time.Now().UTC()

	filter := bson.M{
		"_id":               consultationID,
		"status":            models.StatusCompleted,
		"collection_status": models.CollectionPending,
	}
	update := bson.M{"$set": bson.M{
		"collection_status": models.CollectionCollected,
		"collected_at":      now,
		"updated_at":        now,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Consultation
	err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err == nil {
		log.Printf("Marked consultation %s collected (expert share %d).", consultationID.Hex(), updated.ExpertShare)
		return &updated, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storeErr(err, "db error marking consultation %s collected", consultationID.Hex())
	}

	// Condition not met: diagnose why.
	var existing models.Consultation
	checkErr := collection.FindOne(ctx, bson.M{"_id": consultationID}).Decode(&existing)
	if errors.Is(checkErr, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if checkErr != nil {
		return nil, storeErr(checkErr, "db error checking consultation %s", consultationID.Hex())
	}
	if existing.CollectionStatus == models.CollectionCollected {
		// Idempotent: second call is a no-op success.
		return &existing, nil
	}
	return nil, fmt.Errorf("consultation %s is %s, not completed: %w", consultationID.Hex(), existing.Status, ErrInvalidTransition)
}

// EarningsSummary sums the expert shares across an expert's completed
// consultations, split by collection state.
func (s *ledgerService) EarningsSummary(ctx context.Context, expertID primitive.ObjectID) (*EarningsSummary, error) {
	collection := s.db.Collection(consultationsCollection)
	filter := bson.M{"expert_id": expertID, "status": models.StatusCompleted}

	cursor, err := collection.Find(ctx, filter)
	if err != nil {
		return nil, storeErr(err, "failed to query completed consultations for expert %s", expertID.Hex())
	}
	defer cursor.Close(ctx)

	var consultations []models.Consultation
	if err = cursor.All(ctx, &consultations); err != nil {
		return nil, storeErr(err, "failed to decode consultations for expert %s", expertID.Hex())
	}

	summary := &EarningsSummary{ExpertID: expertID}
	for _, c := range consultations {
		summary.CompletedCount++
		summary.TotalEarnings += c.ExpertShare
		if c.CollectionStatus == models.CollectionCollected {
			summary.Collected += c.ExpertShare
		} else {
			summary.Pending += c.ExpertShare
		}
	}
	return summary, nil
}
