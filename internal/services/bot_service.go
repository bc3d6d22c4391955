package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/config"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/models"
)

// IBotService activates the automated assistant on overdue consultations
// and produces its replies.
type IBotService interface {
	Activate(ctx context.Context, consultationID primitive.ObjectID) (*models.Consultation, error)
	ActivateOverdue(ctx context.Context) (int, error)
	Respond(ctx context.Context, consultationID primitive.ObjectID, incoming string) (*models.Message, error)
}

// botService implements IBotService.
type botService struct {
	db         *mongo.Database
	cfg        *config.Config
	responder  *Responder
	backend    ResponderBackend // optional; nil means rule-based only
	dispatcher TaskDispatcher
}

// NewBotService creates a new BotService. backend may be nil.
func NewBotService(database *mongo.Database, cfg *config.Config, responder *Responder, backend ResponderBackend, dispatcher TaskDispatcher) IBotService {
	return &botService{
		db:         database,
		cfg:        cfg,
		responder:  responder,
		backend:    backend,
		dispatcher: dispatcher,
	}
}

// ShouldActivate reports whether a consultation has waited past the
// activation threshold without a human expert.
func ShouldActivate(c *models.Consultation, now time.Time, threshold time.Duration) bool {
	return c.Status == models.StatusPending && now.Sub(c.CreatedAt) >= threshold
}

// Activate flips a still-pending consultation to bot_assisted and posts the
// welcome message. The status filter makes the flip atomic: if an expert won
// the race, or the bot is already engaged, activation quietly stands down
// and returns the current document. A completed or cancelled consultation
// rejects activation like any other transition out of a terminal status.
func (s *botService) Activate(ctx context.Context, consultationID primitive.ObjectID) (*models.Consultation, error) {
	collection := s.db.Collection(consultationsCollection)
	now := time.Now().UTC()

	filter := bson.M{"_id": consultationID, "status": models.StatusPending}
	update := bson.M{"$set": bson.M{
		"status":           models.StatusBotAssisted,
		"bot_active":       true,
		"bot_activated_at": now,
		"updated_at":       now,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Consultation
	err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		var existing models.Consultation
		checkErr := collection.FindOne(ctx, bson.M{"_id": consultationID}).Decode(&existing)
		if errors.Is(checkErr, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		if checkErr != nil {
			return nil, storeErr(checkErr, "db error checking consultation %s", consultationID.Hex())
		}
		if existing.Status.IsTerminal() {
			return nil, fmt.Errorf("consultation %s is already %s: %w", consultationID.Hex(), existing.Status, ErrInvalidTransition)
		}
		// An expert won the race, or the bot is already engaged. Nothing to do.
		return &existing, nil
	}
	if err != nil {
		return nil, storeErr(err, "db error activating bot on consultation %s", consultationID.Hex())
	}

	s.insertBotMessage(ctx, consultationID, s.responder.WelcomeMessage(&updated))

	event := NotificationEvent{
		EventID:  uuid.NewString(),
		Template: TemplateBotActivated,
		UserID:   updated.RequesterID.Hex(),
		Data:     map[string]interface{}{"consultation_id": consultationID.Hex()},
	}
	if notifyErr := s.dispatcher.Notify(ctx, event); notifyErr != nil {
		log.Printf("Failed to dispatch bot-activated notification for consultation %s: %v", consultationID.Hex(), notifyErr)
	}

	log.Printf("Bot activated on consultation %s.", consultationID.Hex())
	return &updated, nil
}

// ActivateOverdue sweeps the queue and activates the assistant on every
// pending consultation older than the threshold. Returns how many were
// activated; individual failures are logged and do not stop the sweep.
func (s *botService) ActivateOverdue(ctx context.Context) (int, error) {
	collection := s.db.Collection(consultationsCollection)
	cutoff := time.Now().UTC().Add(-s.cfg.BotActivationThreshold)

	filter := bson.M{
		"status":     models.StatusPending,
		"created_at": bson.M{"$lte": cutoff},
	}
	cursor, err := collection.Find(ctx, filter)
	if err != nil {
		return 0, storeErr(err, "failed to query overdue consultations")
	}
	defer cursor.Close(ctx)

	var overdue []models.Consultation
	if err = cursor.All(ctx, &overdue); err != nil {
		return 0, storeErr(err, "failed to decode overdue consultations")
	}

	now := time.Now().UTC()
	activated := 0
	for _, c := range overdue {
		if !ShouldActivate(&c, now, s.cfg.BotActivationThreshold) {
			continue
		}
		result, activateErr := s.Activate(ctx, c.ID)
		if activateErr != nil {
			log.Printf("Failed to activate bot on consultation %s: %v", c.ID.Hex(), activateErr)
			continue
		}
		if result.Status == models.StatusBotAssisted && result.BotActive {
			activated++
		}
	}
	return activated, nil
}

// Respond generates and stores the assistant's reply to a requester message.
// The external backend is preferred when configured; any backend failure
// falls back to the rule-based reply so the farmer always gets an answer.
func (s *botService) Respond(ctx context.Context, consultationID primitive.ObjectID, incoming string) (*models.Message, error) {
	collection := s.db.Collection(consultationsCollection)

	var consultation models.Consultation
	err := collection.FindOne(ctx, bson.M{"_id": consultationID}).Decode(&consultation)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr(err, "db error finding consultation %s", consultationID.Hex())
	}
	if consultation.Status != models.StatusBotAssisted {
		// The assistant only speaks while it holds the consultation.
		return nil, fmt.Errorf("consultation %s is %s, bot is not active: %w", consultationID.Hex(), consultation.Status, ErrInvalidTransition)
	}

	text := ""
	if s.backend != nil {
		text, err = s.backend.GenerateReply(ctx, &consultation, incoming)
		if err != nil {
			log.Printf("Responder backend failed for consultation %s, using rule-based reply: %v", consultationID.Hex(), err)
			text = ""
		}
	}
	if text == "" {
		text = s.responder.Reply(&consultation, incoming)
	}

	return s.insertBotMessage(ctx, consultationID, text)
}

func (s *botService) insertBotMessage(ctx context.Context, consultationID primitive.ObjectID, text string) (*models.Message, error) {
	message := &models.Message{
		ID:             primitive.NewObjectID(),
		ConsultationID: consultationID,
		SenderID:       models.BotSenderID,
		SenderRole:     models.RoleBot,
		Text:           text,
		CreatedAt:      time.Now().UTC(),
	}
	if _, err := s.db.Collection(messagesCollection).InsertOne(ctx, message); err != nil {
		log.Printf("Failed to insert bot message for consultation %s: %v", consultationID.Hex(), err)
		return nil, storeErr(err, "failed to insert bot message")
	}
	return message, nil
}
