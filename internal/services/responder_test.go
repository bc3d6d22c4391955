package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/models"
)

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		text string
		want Intent
	}{
		{"What treatment should I use?", IntentTreatment},
		{"Is there a cure for this?", IntentTreatment},
		{"Any home remedy?", IntentTreatment},
		{"How do I prevent this next year?", IntentPrevention},
		{"How to avoid leaf spot?", IntentPrevention},
		{"Any organic options?", IntentOrganic},
		{"Prefer a natural solution", IntentOrganic},
		{"URGENT: leaves falling off", IntentUrgent},
		{"The damage looks severe", IntentUrgent},
		{"My tomato plant is dying", IntentUrgent},
		{"Hello, what is this?", IntentGeneral},
		{"", IntentGeneral},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyIntent(tt.text), "text: %q", tt.text)
	}
}

// Urgency must win even when the message also matches another bucket.
func TestClassifyIntentUrgentOutranksTreatment(t *testing.T) {
	assert.Equal(t, IntentUrgent, ClassifyIntent("my crop is dying, what treatment should I apply?"))
	assert.Equal(t, IntentUrgent, ClassifyIntent("urgent - need an organic remedy"))
}

func TestResponderReplyUsesDiagnosisContext(t *testing.T) {
	r := NewResponder()
	c := &models.Consultation{
		DiagnosisLabel: "tomato late blight",
		Region:         "north",
		Season:         "monsoon",
	}

	reply := r.Reply(c, "what treatment do you recommend?")
	assert.Contains(t, reply, "tomato late blight")
	assert.Contains(t, reply, "north")
	assert.Contains(t, reply, "monsoon")

	prevention := r.Reply(c, "how can I avoid this?")
	assert.Contains(t, prevention, "rotate crops")

	// "treatment" outranks "organic" when both appear.
	organic := r.Reply(c, "any organic treatment options?")
	assert.Contains(t, organic, "fungicide")
}

func TestResponderReplyWithoutDiagnosis(t *testing.T) {
	r := NewResponder()
	c := &models.Consultation{}

	reply := r.Reply(c, "hello")
	assert.Contains(t, reply, "your plant's condition")
	assert.NotContains(t, reply, "%s")
}

func TestResponderWelcomeAndHandoff(t *testing.T) {
	r := NewResponder()
	c := &models.Consultation{DiagnosisLabel: "powdery mildew"}

	welcome := r.WelcomeMessage(c)
	assert.Contains(t, welcome, "powdery mildew")
	assert.Contains(t, welcome, "agronomist")

	handoff := r.ExpertJoinedMessage()
	assert.Contains(t, handoff, "agronomist has joined")
}
