package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/config"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/models"
)

// IMessageService handles the chat thread attached to a consultation.
type IMessageService interface {
	PostMessage(ctx context.Context, consultationID, senderID primitive.ObjectID, text string) (*models.Message, error)
	ListByConsultation(ctx context.Context, consultationID primitive.ObjectID) ([]models.Message, error)
	MarkRead(ctx context.Context, consultationID, readerID primitive.ObjectID) (int64, error)
}

// messageService implements IMessageService.
type messageService struct {
	db         *mongo.Database
	cfg        *config.Config
	dispatcher TaskDispatcher
}

// NewMessageService creates a new MessageService.
func NewMessageService(database *mongo.Database, cfg *config.Config, dispatcher TaskDispatcher) IMessageService {
	return &messageService{db: database, cfg: cfg, dispatcher: dispatcher}
}

// PostMessage appends a message to a live consultation's thread. The sender
// must be a party to the consultation; the role is derived from the sender
// id. Side effects: the first expert message on an assigned consultation
// moves it to in_progress, and a requester message on a bot-assisted
// consultation triggers an asynchronous assistant reply.
func (s *messageService) PostMessage(ctx context.Context, consultationID, senderID primitive.ObjectID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("message text is required: %w", ErrValidation)
	}
	if utf8.RuneCountInString(text) > s.cfg.MessageMaxLength {
		return nil, fmt.Errorf("message exceeds %d characters: %w", s.cfg.MessageMaxLength, ErrValidation)
	}

	var consultation models.Consultation
	err := s.db.Collection(consultationsCollection).FindOne(ctx, bson.M{"_id": consultationID}).Decode(&consultation)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr(err, "db error finding consultation %s", consultationID.Hex())
	}
	if consultation.Status.IsTerminal() {
		return nil, fmt.Errorf("consultation %s is %s, thread is closed: %w", consultationID.Hex(), consultation.Status, ErrInvalidTransition)
	}

	role, err := senderRole(&consultation, senderID)
	if err != nil {
		return nil, err
	}

	message := &models.Message{
		ID:             primitive.NewObjectID(),
		ConsultationID: consultationID,
		SenderID:       senderID,
		SenderRole:     role,
		Text:           text,
		CreatedAt:      time.Now().UTC(),
	}
	if _, err = s.db.Collection(messagesCollection).InsertOne(ctx, message); err != nil {
		return nil, storeErr(err, "failed to insert message for consultation %s", consultationID.Hex())
	}

	switch {
	case role == models.RoleExpert && consultation.Status == models.StatusAssigned:
		s.markInProgress(ctx, consultationID)
	case role == models.RoleRequester && consultation.Status == models.StatusBotAssisted:
		if dispatchErr := s.dispatcher.ScheduleBotReply(ctx, consultationID, text); dispatchErr != nil {
			log.Printf("Failed to schedule bot reply for consultation %s: %v", consultationID.Hex(), dispatchErr)
		}
	}

	return message, nil
}

// senderRole resolves who the sender is relative to the consultation.
func senderRole(c *models.Consultation, senderID primitive.ObjectID) (models.SenderRole, error) {
	switch {
	case senderID == c.RequesterID:
		return models.RoleRequester, nil
	case c.ExpertID != nil && senderID == *c.ExpertID:
		return models.RoleExpert, nil
	case senderID == models.BotSenderID:
		return models.RoleBot, nil
	default:
		return "", fmt.Errorf("sender %s is not a party to consultation %s: %w", senderID.Hex(), c.ID.Hex(), ErrValidation)
	}
}

// markInProgress records that the expert has started working the case. The
// filter keeps it a no-op if the status already moved on.
func (s *messageService) markInProgress(ctx context.Context, consultationID primitive.ObjectID) {
	filter := bson.M{"_id": consultationID, "status": models.StatusAssigned}
	update := bson.M{"$set": bson.M{
		"status":     models.StatusInProgress,
		"updated_at": time.Now().UTC(),
	}}
	if _, err := s.db.Collection(consultationsCollection).UpdateOne(ctx, filter, update); err != nil {
		log.Printf("Failed to mark consultation %s in progress: %v", consultationID.Hex(), err)
	}
}

// ListByConsultation returns a consultation's thread, oldest first.
func (s *messageService) ListByConsultation(ctx context.Context, consultationID primitive.ObjectID) ([]models.Message, error) {
	collection := s.db.Collection(messagesCollection)
	sort := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := collection.Find(ctx, bson.M{"consultation_id": consultationID}, sort)
	if err != nil {
		return nil, storeErr(err, "failed to query messages for consultation %s", consultationID.Hex())
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, storeErr(err, "failed to decode messages for consultation %s", consultationID.Hex())
	}
	return messages, nil
}

// MarkRead marks every message in the thread not authored by the reader as
// read. Returns the number of messages newly marked.
func (s *messageService) MarkRead(ctx context.Context, consultationID, readerID primitive.ObjectID) (int64, error) {
	collection := s.db.Collection(messagesCollection)

	filter := bson.M{
		"consultation_id": consultationID,
		"sender_id":       bson.M{"$ne": readerID},
		"is_read":         false,
	}
	update := bson.M{"$set": bson.M{
		"is_read": true,
		"read_at": time.Now().UTC(),
	}}

	result, err := collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, storeErr(err, "failed to mark messages read for consultation %s", consultationID.Hex())
	}
	return result.ModifiedCount, nil
}
