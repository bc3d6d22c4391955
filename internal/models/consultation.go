package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConsultationStatus is the lifecycle state of a consultation.
type ConsultationStatus string

const (
	StatusPending     ConsultationStatus = "pending"
	StatusAssigned    ConsultationStatus = "assigned"
	StatusBotAssisted ConsultationStatus = "bot_assisted"
	StatusInProgress  ConsultationStatus = "in_progress"
	StatusCompleted   ConsultationStatus = "completed"
	StatusCancelled   ConsultationStatus = "cancelled"
)

// statusTransitions defines the only legal status moves. Completed and
// cancelled are terminal and have no outgoing edges.
var statusTransitions = map[ConsultationStatus][]ConsultationStatus{
	StatusPending:     {StatusAssigned, StatusBotAssisted, StatusCancelled},
	StatusBotAssisted: {StatusAssigned, StatusCancelled},
	StatusAssigned:    {StatusInProgress, StatusCompleted, StatusCancelled},
	StatusInProgress:  {StatusCompleted, StatusCancelled},
}

// CanTransitionTo reports whether moving from s to next is a legal transition.
func (s ConsultationStatus) CanTransitionTo(next ConsultationStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further status transitions are permitted.
func (s ConsultationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CollectionStatus tracks whether the expert's share has been paid out.
type CollectionStatus string

const (
	CollectionPending   CollectionStatus = "pending"
	CollectionCollected CollectionStatus = "collected"
)

// Regions and Seasons enumerate the accepted values for the corresponding
// consultation fields, matching the mobile client's pickers.
var (
	Regions = []string{"North", "South", "East", "West", "Central", "Northeast"}
	Seasons = []string{"Summer", "Monsoon", "Winter", "Spring", "Autumn"}
)

// ValidRegion reports whether r is a known region name.
func ValidRegion(r string) bool { return contains(Regions, r) }

// ValidSeason reports whether s is a known season name.
func ValidSeason(s string) bool { return contains(Seasons, s) }

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Consultation is a farmer's plant-health consultation request and its full
// lifecycle state: queue membership, expert assignment, bot fallback,
// commission split and quality signals. CreatedAt is immutable and defines
// the FIFO order of the pending queue.
type Consultation struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	RequesterID primitive.ObjectID  `bson:"requester_id" json:"requester_id"`
	ExpertID    *primitive.ObjectID `bson:"expert_id,omitempty" json:"expert_id,omitempty"`
	DiagnosisID *primitive.ObjectID `bson:"diagnosis_id,omitempty" json:"diagnosis_id,omitempty"` // prior ML analysis, if any

	PlantName      string   `bson:"plant_name" json:"plant_name"`
	Symptoms       string   `bson:"symptoms" json:"symptoms"`
	DiagnosisLabel string   `bson:"diagnosis_label,omitempty" json:"diagnosis_label,omitempty"` // denormalized from the analysis for bot templates
	Region         string   `bson:"region" json:"region"`
	Season         string   `bson:"season" json:"season"`
	ImageURLs      []string `bson:"image_urls" json:"image_urls"` // opaque references, storage is external

	Status ConsultationStatus `bson:"status" json:"status"`

	// Bot fallback state. BotActive records that a bot ever engaged; it is
	// never flipped off when a human later accepts.
	BotActive      bool       `bson:"bot_active" json:"bot_active"`
	BotActivatedAt *time.Time `bson:"bot_activated_at,omitempty" json:"bot_activated_at,omitempty"`

	// Assignment state. WaitTimeMinutes is computed once, at accept time.
	AssignedAt      *time.Time `bson:"assigned_at,omitempty" json:"assigned_at,omitempty"`
	CompletedAt     *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	WaitTimeMinutes int        `bson:"wait_time_minutes" json:"wait_time_minutes"`

	// Financials. Shares are recomputed eagerly whenever Amount is set;
	// PlatformShare + ExpertShare may differ from Amount by at most one unit.
	Amount           int64            `bson:"amount" json:"amount"`
	PlatformShare    int64            `bson:"platform_share" json:"platform_share"`
	ExpertShare      int64            `bson:"expert_share" json:"expert_share"`
	CollectionStatus CollectionStatus `bson:"collection_status" json:"collection_status"`
	CollectedAt      *time.Time       `bson:"collected_at,omitempty" json:"collected_at,omitempty"`

	// Quality signals, null until the requester leaves feedback.
	Rating        *int   `bson:"rating,omitempty" json:"rating,omitempty"`
	Feedback      string `bson:"feedback,omitempty" json:"feedback,omitempty"`
	Effectiveness *int   `bson:"effectiveness,omitempty" json:"effectiveness,omitempty"` // 0-100

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
