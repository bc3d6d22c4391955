package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SenderRole tags every message with who authored it. The role is carried
// explicitly rather than inferred from the sender id.
type SenderRole string

const (
	RoleRequester SenderRole = "requester"
	RoleExpert    SenderRole = "expert"
	RoleBot       SenderRole = "bot"
)

// BotSenderID is the reserved identity used for all bot-authored messages.
// It is a fixed id that can never collide with a real user document.
var BotSenderID, _ = primitive.ObjectIDFromHex("b07b07b07b07b07b07b07b07")

// MessageMaxLength bounds the text of a single chat message.
const MessageMaxLength = 2000

// Message belongs to exactly one consultation. Messages are append-only and
// are kept for audit even after the consultation reaches a terminal status.
type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ConsultationID primitive.ObjectID `bson:"consultation_id" json:"consultation_id"`
	SenderID       primitive.ObjectID `bson:"sender_id" json:"sender_id"`
	SenderRole     SenderRole         `bson:"sender_role" json:"sender_role"`
	Text           string             `bson:"text" json:"text"`
	IsRead         bool               `bson:"is_read" json:"is_read"`
	ReadAt         *time.Time         `bson:"read_at,omitempty" json:"read_at,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}
