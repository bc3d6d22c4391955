package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/config"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/db"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/models"
)

// SubmitConsultationInput carries the farmer's request.
type SubmitConsultationInput struct {
	RequesterID    primitive.ObjectID
	DiagnosisID    *primitive.ObjectID
	PlantName      string
	Symptoms       string
	DiagnosisLabel string
	Region         string
	Season         string
	ImageURLs      []string
	Amount         int64
}

// SubmitResult is the consultation plus its place in the waiting queue.
type SubmitResult struct {
	Consultation         *models.Consultation `json:"consultation"`
	QueuePosition        int                  `json:"queue_position"`
	EstimatedWaitMinutes int                  `json:"estimated_wait_minutes"`
}

// IConsultationService owns the consultation lifecycle: submission,
// assignment, completion, cancellation, rating and pricing.
type IConsultationService interface {
	Submit(ctx context.Context, input SubmitConsultationInput) (*SubmitResult, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Consultation, error)
	Accept(ctx context.Context, consultationID, expertID primitive.ObjectID) (*models.Consultation, error)
	Complete(ctx context.Context, consultationID, expertID primitive.ObjectID) (*models.Consultation, error)
	Cancel(ctx context.Context, consultationID, requesterID primitive.ObjectID) (*models.Consultation, error)
	Rate(ctx context.Context, consultationID, requesterID primitive.ObjectID, rating int, feedback string) (*models.Consultation, error)
	SetAmount(ctx context.Context, consultationID primitive.ObjectID, amount int64) (*models.Consultation, error)
	ListByRequester(ctx context.Context, requesterID primitive.ObjectID) ([]models.Consultation, error)
	ActiveForExpert(ctx context.Context, expertID primitive.ObjectID) ([]models.Consultation, error)
}

// consultationService implements IConsultationService.
type consultationService struct {
	db         *mongo.Database
	cfg        *config.Config
	queue      IQueueService
	responder  *Responder
	dispatcher TaskDispatcher
}

// NewConsultationService creates a new ConsultationService.
func NewConsultationService(database *mongo.Database, cfg *config.Config, queue IQueueService, responder *Responder, dispatcher TaskDispatcher) IConsultationService {
	return &consultationService{
		db:         database,
		cfg:        cfg,
		queue:      queue,
		responder:  responder,
		dispatcher: dispatcher,
	}
}

// Submit validates and stores a new consultation, computes its queue
// position, and schedules the assistant-activation check. Notification and
// scheduling failures are logged, never surfaced: the consultation is
// already committed.
func (s *consultationService) Submit(ctx context.Context, input SubmitConsultationInput) (*SubmitResult, error) {
	if err := validateSubmitInput(input); err != nil {
		return nil, err
	}

	amount := input.Amount
	if amount == 0 {
		amount = s.cfg.ConsultationAmount
	}
	platformShare, expertShare := SplitAmount(amount, s.cfg.PlatformCommissionRate)

	now := time.Now().UTC()
	consultation := &models.Consultation{
		ID:               primitive.NewObjectID(),
		RequesterID:      input.RequesterID,
		DiagnosisID:      input.DiagnosisID,
		PlantName:        strings.TrimSpace(input.PlantName),
		Symptoms:         strings.TrimSpace(input.Symptoms),
		DiagnosisLabel:   strings.TrimSpace(input.DiagnosisLabel),
		Region:           input.Region,
		Season:           input.Season,
		ImageURLs:        input.ImageURLs,
		Status:           models.StatusPending,
		Amount:           amount,
		PlatformShare:    platformShare,
		ExpertShare:      expertShare,
		CollectionStatus: models.CollectionPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	collection := s.db.Collection(consultationsCollection)
	err := db.Try(func() error {
		_, insertErr := collection.InsertOne(ctx, consultation)
		return insertErr
	}, func() {
		consultation.ID = primitive.NewObjectID()
	})
	if err != nil {
		return nil, storeErr(err, "failed to insert consultation")
	}

	position, err := s.queue.PositionOf(ctx, consultation.ID)
	if err != nil {
		// The document is committed; a racing accept may already have
		// removed it from the queue.
		log.Printf("Could not compute queue position for consultation %s: %v", consultation.ID.Hex(), err)
		position = 0
	}

	if err := s.dispatcher.ScheduleActivationCheck(ctx, consultation.ID, s.cfg.BotActivationThreshold); err != nil {
		log.Printf("Failed to schedule activation check for consultation %s: %v", consultation.ID.Hex(), err)
	}
	s.notify(ctx, TemplateConsultationCreated, consultation.RequesterID, map[string]interface{}{
		"consultation_id": consultation.ID.Hex(),
		"queue_position":  position,
	})

	return &SubmitResult{
		Consultation:         consultation,
		QueuePosition:        position,
		EstimatedWaitMinutes: s.queue.EstimatedWaitMinutes(position),
	}, nil
}

func validateSubmitInput(input SubmitConsultationInput) error {
	if input.RequesterID.IsZero() {
		return fmt.Errorf("requester id is required: %w", ErrValidation)
	}
	if strings.TrimSpace(input.PlantName) == "" {
		return fmt.Errorf("plant name is required: %w", ErrValidation)
	}
	if strings.TrimSpace(input.Symptoms) == "" {
		return fmt.Errorf("symptoms description is required: %w", ErrValidation)
	}
	if input.Region != "" && !models.ValidRegion(input.Region) {
		return fmt.Errorf("unknown region %q: %w", input.Region, ErrValidation)
	}
	if input.Season != "" && !models.ValidSeason(input.Season) {
		return fmt.Errorf("unknown season %q: %w", input.Season, ErrValidation)
	}
	if input.Amount < 0 {
		return fmt.Errorf("amount must not be negative: %w", ErrValidation)
	}
	return nil
}

// FindByID returns a consultation by id.
func (s *consultationService) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Consultation, error) {
	collection := s.db.Collection(consultationsCollection)

	var consultation models.Consultation
	err := collection.FindOne(ctx, bson.M{"_id": id}).Decode(&consultation)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr(err, "db error finding consultation %s", id.Hex())
	}
	return &consultation, nil
}

// Accept atomically claims a waiting consultation for an expert. The filter
// carries the full precondition so two racing experts cannot both win; the
// loser gets ErrAlreadyAssigned. Accepting a bot_assisted consultation takes
// it over from the assistant.
func (s *consultationService) Accept(ctx context.Context, consultationID, expertID primitive.ObjectID) (*models.Consultation, error) {
	collection := s.db.Collection(consultationsCollection)
	now := time.Now().UTC()

	filter := bson.M{
		"_id": consultationID,
		"status": bson.M{"$in": []models.ConsultationStatus{
			models.StatusPending,
			models.StatusBotAssisted,
		}},
	}
	update := bson.M{"$set": bson.M{
		"status":      models.StatusAssigned,
		"expert_id":   expertID,
		"assigned_at": now,
		"updated_at":  now,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Consultation
	err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, s.diagnoseAcceptFailure(ctx, consultationID)
	}
	if err != nil {
		return nil, storeErr(err, "db error accepting consultation %s", consultationID.Hex())
	}

	wasBotAssisted := updated.BotActivatedAt != nil

	// Wait time is informational; a failure here must not undo the claim.
	waitMinutes := int(math.Round(now.Sub(updated.CreatedAt).Minutes()))
	if _, err := collection.UpdateByID(ctx, consultationID, bson.M{"$set": bson.M{"wait_time_minutes": waitMinutes}}); err != nil {
		log.Printf("Failed to record wait time for consultation %s: %v", consultationID.Hex(), err)
	} else {
		updated.WaitTimeMinutes = waitMinutes
	}

	if wasBotAssisted {
		s.insertHandoffMessage(ctx, consultationID)
	}
	s.notify(ctx, TemplateExpertAssigned, updated.RequesterID, map[string]interface{}{
		"consultation_id": consultationID.Hex(),
		"expert_id":       expertID.Hex(),
	})

	log.Printf("Consultation %s accepted by expert %s after %d min.", consultationID.Hex(), expertID.Hex(), waitMinutes)
	return &updated, nil
}

// diagnoseAcceptFailure re-fetches the consultation to tell the caller why
// the atomic claim matched nothing.
func (s *consultationService) diagnoseAcceptFailure(ctx context.Context, consultationID primitive.ObjectID) error {
	existing, err := s.FindByID(ctx, consultationID)
	if err != nil {
		return err
	}
	if existing.Status.IsTerminal() {
		return fmt.Errorf("consultation %s is already %s: %w", consultationID.Hex(), existing.Status, ErrInvalidTransition)
	}
	return fmt.Errorf("consultation %s: %w", consultationID.Hex(), ErrAlreadyAssigned)
}

// insertHandoffMessage posts the assistant's goodbye once a human takes
// over. Best effort.
func (s *consultationService) insertHandoffMessage(ctx context.Context, consultationID primitive.ObjectID) {
	now := time.Now().UTC()
	message := &models.Message{
		ID:             primitive.NewObjectID(),
		ConsultationID: consultationID,
		SenderID:       models.BotSenderID,
		SenderRole:     models.RoleBot,
		Text:           s.responder.ExpertJoinedMessage(),
		CreatedAt:      now,
	}
	if _, err := s.db.Collection(messagesCollection).InsertOne(ctx, message); err != nil {
		log.Printf("Failed to insert handoff message for consultation %s: %v", consultationID.Hex(), err)
	}
}

// Complete moves an expert's active consultation to completed. The shares
// were fixed at submission (or the last amount change); completion only
// stamps the timestamp.
func (s *consultationService) Complete(ctx context.Context, consultationID, expertID primitive.ObjectID) (*models.Consultation, error) {
	collection := s.db.Collection(consultationsCollection)
	now := time.Now().UTC()

	filter := bson.M{
		"_id":       consultationID,
		"expert_id": expertID,
		"status": bson.M{"$in": []models.ConsultationStatus{
			models.StatusAssigned,
			models.StatusInProgress,
		}},
	}
	update := bson.M{"$set": bson.M{
		"status":       models.StatusCompleted,
		"completed_at": now,
		"updated_at":   now,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Consultation
	err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		existing, findErr := s.FindByID(ctx, consultationID)
		if findErr != nil {
			return nil, findErr
		}
		if existing.ExpertID == nil || *existing.ExpertID != expertID {
			return nil, fmt.Errorf("consultation %s is not assigned to expert %s: %w", consultationID.Hex(), expertID.Hex(), ErrValidation)
		}
		return nil, fmt.Errorf("consultation %s cannot complete from %s: %w", consultationID.Hex(), existing.Status, ErrInvalidTransition)
	}
	if err != nil {
		return nil, storeErr(err, "db error completing consultation %s", consultationID.Hex())
	}

	s.notify(ctx, TemplateConsultationCompleted, updated.RequesterID, map[string]interface{}{
		"consultation_id": consultationID.Hex(),
	})
	log.Printf("Consultation %s completed by expert %s.", consultationID.Hex(), expertID.Hex())
	return &updated, nil
}

// Cancel lets the requester withdraw a consultation that has not finished.
func (s *consultationService) Cancel(ctx context.Context, consultationID, requesterID primitive.ObjectID) (*models.Consultation, error) {
	collection := s.db.Collection(consultationsCollection)
	now := time.Now().UTC()

	filter := bson.M{
		"_id":          consultationID,
		"requester_id": requesterID,
		"status": bson.M{"$nin": []models.ConsultationStatus{
			models.StatusCompleted,
			models.StatusCancelled,
		}},
	}
	update := bson.M{"$set": bson.M{
		"status":     models.StatusCancelled,
		"updated_at": now,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Consultation
	err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		existing, findErr := s.FindByID(ctx, consultationID)
		if findErr != nil {
			return nil, findErr
		}
		if existing.RequesterID != requesterID {
			return nil, fmt.Errorf("consultation %s does not belong to requester %s: %w", consultationID.Hex(), requesterID.Hex(), ErrValidation)
		}
		if !existing.Status.CanTransitionTo(models.StatusCancelled) {
			return nil, fmt.Errorf("consultation %s is already %s: %w", consultationID.Hex(), existing.Status, ErrInvalidTransition)
		}
		// Lost a race with a concurrent transition; the status we saw is stale.
		return nil, fmt.Errorf("consultation %s changed concurrently: %w", consultationID.Hex(), ErrInvalidTransition)
	}
	if err != nil {
		return nil, storeErr(err, "db error cancelling consultation %s", consultationID.Hex())
	}

	log.Printf("Consultation %s cancelled by requester.", consultationID.Hex())
	return &updated, nil
}

// Rate records the requester's 1-5 rating of a completed consultation.
// Effectiveness is the rating expressed as a percentage.
func (s *consultationService) Rate(ctx context.Context, consultationID, requesterID primitive.ObjectID, rating int, feedback string) (*models.Consultation, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("rating must be between 1 and 5, got %d: %w", rating, ErrValidation)
	}

	collection := s.db.Collection(consultationsCollection)
	effectiveness := rating * 100 / 5

	filter := bson.M{
		"_id":          consultationID,
		"requester_id": requesterID,
		"status":       models.StatusCompleted,
	}
	update := bson.M{"$set": bson.M{
		"rating":        rating,
		"feedback":      feedback,
		"effectiveness": effectiveness,
		"updated_at":    time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Consultation
	err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		existing, findErr := s.FindByID(ctx, consultationID)
		if findErr != nil {
			return nil, findErr
		}
		if existing.RequesterID != requesterID {
			return nil, fmt.Errorf("consultation %s does not belong to requester %s: %w", consultationID.Hex(), requesterID.Hex(), ErrValidation)
		}
		return nil, fmt.Errorf("consultation %s is %s, only completed consultations can be rated: %w", consultationID.Hex(), existing.Status, ErrInvalidTransition)
	}
	if err != nil {
		return nil, storeErr(err, "db error rating consultation %s", consultationID.Hex())
	}
	return &updated, nil
}

// SetAmount re-prices a consultation that has not finished, recomputing
// both shares from the new amount.
func (s *consultationService) SetAmount(ctx context.Context, consultationID primitive.ObjectID, amount int64) (*models.Consultation, error) {
	if amount < 0 {
		return nil, fmt.Errorf("amount must not be negative: %w", ErrValidation)
	}

	collection := s.db.Collection(consultationsCollection)
	platformShare, expertShare := SplitAmount(amount, s.cfg.PlatformCommissionRate)

	filter := bson.M{
		"_id": consultationID,
		"status": bson.M{"$nin": []models.ConsultationStatus{
			models.StatusCompleted,
			models.StatusCancelled,
		}},
	}
	update := bson.M{"$set": bson.M{
		"amount":         amount,
		"platform_share": platformShare,
		"expert_share":   expertShare,
		"updated_at":     time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Consultation
	err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		existing, findErr := s.FindByID(ctx, consultationID)
		if findErr != nil {
			return nil, findErr
		}
		return nil, fmt.Errorf("consultation %s is %s, amount is frozen: %w", consultationID.Hex(), existing.Status, ErrInvalidTransition)
	}
	if err != nil {
		return nil, storeErr(err, "db error setting amount for consultation %s", consultationID.Hex())
	}
	return &updated, nil
}

// ListByRequester returns a requester's consultations, newest first.
func (s *consultationService) ListByRequester(ctx context.Context, requesterID primitive.ObjectID) ([]models.Consultation, error) {
	return s.list(ctx, bson.M{"requester_id": requesterID}, bson.D{{Key: "created_at", Value: -1}})
}

// ActiveForExpert returns an expert's currently open consultations.
func (s *consultationService) ActiveForExpert(ctx context.Context, expertID primitive.ObjectID) ([]models.Consultation, error) {
	filter := bson.M{
		"expert_id": expertID,
		"status": bson.M{"$in": []models.ConsultationStatus{
			models.StatusAssigned,
			models.StatusInProgress,
		}},
	}
	return s.list(ctx, filter, bson.D{{Key: "assigned_at", Value: 1}})
}

func (s *consultationService) list(ctx context.Context, filter bson.M, sort bson.D) ([]models.Consultation, error) {
	collection := s.db.Collection(consultationsCollection)

	cursor, err := collection.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, storeErr(err, "failed to query consultations")
	}
	defer cursor.Close(ctx)

	var consultations []models.Consultation
	if err = cursor.All(ctx, &consultations); err != nil {
		return nil, storeErr(err, "failed to decode consultations")
	}
	return consultations, nil
}

// notify hands a notification to the dispatcher; delivery failures are
// logged only, since the state change is already committed.
func (s *consultationService) notify(ctx context.Context, template string, userID primitive.ObjectID, data map[string]interface{}) {
	event := NotificationEvent{
		EventID:  uuid.NewString(),
		Template: template,
		UserID:   userID.Hex(),
		Data:     data,
	}
	if err := s.dispatcher.Notify(ctx, event); err != nil {
		log.Printf("Failed to dispatch %s notification for user %s: %v", template, userID.Hex(), err)
	}
}
