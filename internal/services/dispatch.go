package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notification template identifiers. Rendering and address resolution belong
// to the delivery collaborator; the engine only names the template and
// supplies the data.
const (
	TemplateConsultationCreated   = "consultation-created"
	TemplateExpertAssigned        = "expert-assigned"
	TemplateBotActivated          = "bot-activated"
	TemplateConsultationCompleted = "consultation-completed"
)

// NotificationEvent describes a user-facing notification to be delivered
// out-of-band. EventID is unique per emission so downstream delivery can
// deduplicate retries.
type NotificationEvent struct {
	EventID  string                 `json:"event_id"`
	Template string                 `json:"template"`
	UserID   string                 `json:"user_id"` // delivery handle; the user directory resolves the address
	Data     map[string]interface{} `json:"data"`
}

// TaskDispatcher hands work to the background worker. Every method is
// best-effort from the caller's point of view: a dispatch failure must never
// roll back the state transition that preceded it.
type TaskDispatcher interface {
	// Notify enqueues a notification for delivery.
	Notify(ctx context.Context, event NotificationEvent) error

	// ScheduleActivationCheck enqueues a one-shot bot activation check for a
	// consultation, to run after the given delay.
	ScheduleActivationCheck(ctx context.Context, consultationID primitive.ObjectID, delay time.Duration) error

	// ScheduleBotReply enqueues asynchronous generation of a bot reply to a
	// requester message on a bot-assisted consultation.
	ScheduleBotReply(ctx context.Context, consultationID primitive.ObjectID, incomingText string) error
}
