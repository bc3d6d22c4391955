package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/models"
)

// Intent buckets for incoming farmer messages. Classification is
// first-match in priority order: urgency outranks everything else so a
// "my crop is dying, what treatment?" message gets the urgent reply.
type Intent string

const (
	IntentUrgent     Intent = "urgent"
	IntentTreatment  Intent = "treatment"
	IntentPrevention Intent = "prevention"
	IntentOrganic    Intent = "organic"
	IntentGeneral    Intent = "general"
)

var intentKeywords = []struct {
	intent   Intent
	keywords []string
}{
	{IntentUrgent, []string{"urgent", "severe", "dying"}},
	{IntentTreatment, []string{"treatment", "cure", "remedy"}},
	{IntentPrevention, []string{"prevent", "avoid"}},
	{IntentOrganic, []string{"organic", "natural"}},
}

// ClassifyIntent buckets a message by keyword, case-insensitively.
func ClassifyIntent(text string) Intent {
	lower := strings.ToLower(text)
	for _, entry := range intentKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.intent
			}
		}
	}
	return IntentGeneral
}

// ResponderBackend produces a free-form assistant reply. Implementations may
// call out to an external model; errors fall back to the rule-based reply.
type ResponderBackend interface {
	GenerateReply(ctx context.Context, consultation *models.Consultation, incoming string) (string, error)
}

// Responder builds the automated assistant's replies from consultation
// context. It is pure and deterministic; the optional backend lives in
// BotService.
type Responder struct{}

// NewResponder creates a Responder.
func NewResponder() *Responder {
	return &Responder{}
}

// Reply produces the canned reply for an incoming message.
func (r *Responder) Reply(c *models.Consultation, incoming string) string {
	label := c.DiagnosisLabel
	if label == "" {
		label = "your plant's condition"
	}

	switch ClassifyIntent(incoming) {
	case IntentUrgent:
		return fmt.Sprintf("This sounds serious. For %s, immediately isolate the affected plants to stop the spread, remove heavily damaged leaves, and avoid overhead watering. An agronomist will review your case as soon as one is available; if the damage is spreading fast, contact your local agricultural extension office today.", label)
	case IntentTreatment:
		return fmt.Sprintf("For %s, a common approach is to remove the affected parts, apply an appropriate fungicide or pesticide as per the label directions, and keep the foliage dry. Treatments for the %s region during %s may differ, so confirm the product is registered for your crop.", label, regionOrDefault(c), seasonOrDefault(c))
	case IntentPrevention:
		return fmt.Sprintf("To prevent %s from recurring: rotate crops each season, space plants for good airflow, water at the base early in the day, and inspect new growth weekly. In %s during %s, extra attention to drainage helps.", label, regionOrDefault(c), seasonOrDefault(c))
	case IntentOrganic:
		return fmt.Sprintf("Organic options for %s include neem oil sprays, copper-based fungicides approved for organic use, and introducing beneficial insects. Compost teas and proper mulching also strengthen the plant's own defenses.", label)
	default:
		return fmt.Sprintf("Thanks for the details about %s. Could you describe when the symptoms first appeared and whether they are spreading? Photos of both affected and healthy leaves help a lot. An agronomist will join this consultation as soon as one is available.", label)
	}
}

// WelcomeMessage is posted when the assistant takes over a waiting
// consultation.
func (r *Responder) WelcomeMessage(c *models.Consultation) string {
	label := c.DiagnosisLabel
	if label == "" {
		label = "your consultation"
	}
	return fmt.Sprintf("Hello! All our agronomists are currently busy, so I'll help you in the meantime. I can see this is about %s. Feel free to ask about treatment, prevention, or organic options. An agronomist will take over as soon as one is available.", label)
}

// ExpertJoinedMessage is the assistant's handoff note once a human expert
// accepts a consultation it had been covering.
func (r *Responder) ExpertJoinedMessage() string {
	return "Good news! An agronomist has joined this consultation and will take it from here. Thanks for your patience."
}

func regionOrDefault(c *models.Consultation) string {
	if c.Region != "" {
		return c.Region
	}
	return "your"
}

func seasonOrDefault(c *models.Consultation) string {
	if c.Season != "" {
		return c.Season
	}
	return "the current season"
}
