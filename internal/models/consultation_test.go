package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	allowed := []struct {
		from, to ConsultationStatus
	}{
		{StatusPending, StatusAssigned},
		{StatusPending, StatusBotAssisted},
		{StatusPending, StatusCancelled},
		{StatusBotAssisted, StatusAssigned},
		{StatusBotAssisted, StatusCancelled},
		{StatusAssigned, StatusInProgress},
		{StatusAssigned, StatusCompleted},
		{StatusAssigned, StatusCancelled},
		{StatusInProgress, StatusCompleted},
		{StatusInProgress, StatusCancelled},
	}
	for _, tc := range allowed {
		assert.True(t, tc.from.CanTransitionTo(tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	forbidden := []struct {
		from, to ConsultationStatus
	}{
		{StatusPending, StatusInProgress},
		{StatusPending, StatusCompleted},
		{StatusBotAssisted, StatusCompleted},
		{StatusBotAssisted, StatusPending},
		{StatusAssigned, StatusPending},
		{StatusAssigned, StatusBotAssisted},
		{StatusInProgress, StatusAssigned},
		{StatusCompleted, StatusCancelled},
		{StatusCompleted, StatusAssigned},
		{StatusCancelled, StatusPending},
		{StatusCancelled, StatusCompleted},
	}
	for _, tc := range forbidden {
		assert.False(t, tc.from.CanTransitionTo(tc.to), "%s -> %s should be forbidden", tc.from, tc.to)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())

	for _, s := range []ConsultationStatus{StatusPending, StatusAssigned, StatusBotAssisted, StatusInProgress} {
		assert.False(t, s.IsTerminal(), "%s should not be terminal", s)
	}
}

func TestValidRegionAndSeason(t *testing.T) {
	assert.True(t, ValidRegion("North"))
	assert.False(t, ValidRegion("Atlantis"))
	assert.False(t, ValidRegion(""))

	assert.True(t, ValidSeason("Monsoon"))
	assert.False(t, ValidSeason("Harvest"))
	assert.False(t, ValidSeason(""))
}
