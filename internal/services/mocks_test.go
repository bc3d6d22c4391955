package services

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// mockDispatcher records dispatched work instead of enqueueing it.
type mockDispatcher struct {
	mu               sync.Mutex
	notifications    []NotificationEvent
	activationChecks []primitive.ObjectID
	botReplies       []string
	failNotify       error
}

func (m *mockDispatcher) Notify(ctx context.Context, event NotificationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNotify != nil {
		return m.failNotify
	}
	m.notifications = append(m.notifications, event)
	return nil
}

func (m *mockDispatcher) ScheduleActivationCheck(ctx context.Context, consultationID primitive.ObjectID, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activationChecks = append(m.activationChecks, consultationID)
	return nil
}

func (m *mockDispatcher) ScheduleBotReply(ctx context.Context, consultationID primitive.ObjectID, incomingText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.botReplies = append(m.botReplies, incomingText)
	return nil
}

func (m *mockDispatcher) notificationTemplates() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	templates := make([]string, 0, len(m.notifications))
	for _, n := range m.notifications {
		templates = append(templates, n.Template)
	}
	return templates
}
