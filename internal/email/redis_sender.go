package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/config"
)

// RedisSender stores notification emails in Redis instead of sending them.
// Integration tests and mock-service environments read the keys back to
// assert on delivery without a real mailbox.
type RedisSender struct {
	client *redis.Client
	cfg    *config.Config
}

// NewRedisSender creates a new RedisSender.
func NewRedisSender(client *redis.Client, cfg *config.Config) Sender {
	return &RedisSender{client: client, cfg: cfg}
}

// subjectTemplates maps known notification subjects back to their template
// names, so the mock key identifies which notification was delivered.
var subjectTemplates = map[string]string{
	"Your consultation request was received": "consultation-created",
	"An agronomist has joined":               "expert-assigned",
	"Our assistant is helping you":           "bot-activated",
	"Your consultation is complete":          "consultation-completed",
}

// Send stores a JSON representation of the email under a key derived from
// the primary recipient and the notification template.
func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	template := "unknown"
	for prefix, name := range subjectTemplates {
		if strings.HasPrefix(subject, prefix) {
			template = name
			break
		}
	}

	primaryTo := ""
	if len(to) > 0 {
		primaryTo = to[0]
	}

	emailData := map[string]interface{}{
		"to":       strings.Join(to, ", "),
		"from":     s.cfg.SmtpFromAddress,
		"subject":  subject,
		"body":     string(rawMessage),
		"sent_at":  time.Now().UTC().Format(time.RFC3339Nano),
		"template": template,
	}
	jsonData, err := json.Marshal(emailData)
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	key := fmt.Sprintf("mockemail:%s:%s", primaryTo, template)
	ttl := 5 * time.Minute
	if err = s.client.Set(ctx, key, jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
	}

	log.Printf("Mock email stored in Redis key '%s' (To: %s, Subject: %s)", key, primaryTo, subject)
	return nil
}
