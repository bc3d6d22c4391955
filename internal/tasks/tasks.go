package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/config"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/email"
	"github.com/vipul-madhani/plant-health-diagnosis-tool-sub000/internal/services"
)

// TaskType defines the type of a background task.
const (
	TypeNotificationDeliver = "notify:deliver"
	TypeBotActivationCheck  = "bot:activation:check"
	TypeBotActivationScan   = "bot:activation:scan"
	TypeBotReply            = "bot:reply"
)

// --- Task Client (Enqueuing tasks) ---

// NewClient creates an asynq client on the given Redis connection.
func NewClient(rdb *redis.Client) *asynq.Client {
	clientOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}
	return asynq.NewClient(clientOpt)
}

// Dispatcher implements services.TaskDispatcher on top of asynq.
type Dispatcher struct {
	client *asynq.Client
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(client *asynq.Client) *Dispatcher {
	return &Dispatcher{client: client}
}

// BotActivationCheckPayload identifies the consultation to check.
type BotActivationCheckPayload struct {
	ConsultationID string `json:"consultation_id"`
}

// BotReplyPayload carries the requester message the bot should answer.
type BotReplyPayload struct {
	ConsultationID string `json:"consultation_id"`
	Text           string `json:"text"`
}

// Notify enqueues a notification for delivery.
func (d *Dispatcher) Notify(ctx context.Context, event services.NotificationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification event: %w", err)
	}
	task := asynq.NewTask(TypeNotificationDeliver, payload)
	if _, err = d.client.EnqueueContext(ctx, task, asynq.Queue("default")); err != nil {
		return fmt.Errorf("failed to enqueue notification task: %w", err)
	}
	return nil
}

// ScheduleActivationCheck enqueues a one-shot bot activation check to run
// after the given delay.
func (d *Dispatcher) ScheduleActivationCheck(ctx context.Context, consultationID primitive.ObjectID, delay time.Duration) error {
	payload, err := json.Marshal(BotActivationCheckPayload{ConsultationID: consultationID.Hex()})
	if err != nil {
		return fmt.Errorf("failed to marshal activation check payload: %w", err)
	}
	task := asynq.NewTask(TypeBotActivationCheck, payload)
	if _, err = d.client.EnqueueContext(ctx, task, asynq.ProcessIn(delay), asynq.Queue("critical")); err != nil {
		return fmt.Errorf("failed to enqueue activation check task: %w", err)
	}
	return nil
}

// ScheduleBotReply enqueues asynchronous generation of a bot reply.
func (d *Dispatcher) ScheduleBotReply(ctx context.Context, consultationID primitive.ObjectID, incomingText string) error {
	payload, err := json.Marshal(BotReplyPayload{ConsultationID: consultationID.Hex(), Text: incomingText})
	if err != nil {
		return fmt.Errorf("failed to marshal bot reply payload: %w", err)
	}
	task := asynq.NewTask(TypeBotReply, payload)
	if _, err = d.client.EnqueueContext(ctx, task, asynq.Queue("default")); err != nil {
		return fmt.Errorf("failed to enqueue bot reply task: %w", err)
	}
	return nil
}

// NewScanScheduler returns a scheduler that enqueues the activation scan on
// a fixed cadence. A single registered entry keeps exactly one scan per
// tick: a task that re-enqueued itself would fork a second chain every time
// a failed sweep got retried, and add another on every worker restart.
func NewScanScheduler(rdb *redis.Client, interval time.Duration) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}, nil)

	task := asynq.NewTask(TypeBotActivationScan, nil)
	if _, err := scheduler.Register(fmt.Sprintf("@every %s", interval), task, asynq.Queue("low"), asynq.Unique(interval)); err != nil {
		return nil, fmt.Errorf("failed to register activation scan: %w", err)
	}
	return scheduler, nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg         *config.Config
	emailSender email.Sender
	botService  services.IBotService
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	botService services.IBotService,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:         cfg,
		emailSender: emailSender,
		botService:  botService,
	}
}

// SetupServer configures an Asynq server instance and its handler mux. The
// caller runs srv.Run(mux) (typically in a goroutine) and calls
// srv.Shutdown() on exit. Returns nil in API-only mode.
func SetupServer(rdb *redis.Client, processor *TaskProcessor, isBgWorker bool) (*asynq.Server, *asynq.ServeMux) {
	if !isBgWorker {
		log.Println("Running in API mode, no task server started.")
		return nil, nil
	}

	serverOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeNotificationDeliver, processor.HandleNotificationDeliverTask)
	mux.HandleFunc(TypeBotActivationCheck, processor.HandleBotActivationCheckTask)
	mux.HandleFunc(TypeBotActivationScan, processor.HandleBotActivationScanTask)
	mux.HandleFunc(TypeBotReply, processor.HandleBotReplyTask)
	log.Println("Registered background task handlers.")

	return srv, mux
}

// --- Task Handlers ---

// notificationSubjects maps template names to email subjects.
var notificationSubjects = map[string]string{
	services.TemplateConsultationCreated:   "Your consultation request was received",
	services.TemplateExpertAssigned:        "An agronomist has joined your consultation",
	services.TemplateBotActivated:          "Our assistant is helping you while you wait",
	services.TemplateConsultationCompleted: "Your consultation is complete",
}

// HandleNotificationDeliverTask renders and delivers a notification email.
// The event's UserID is a delivery handle; when the caller supplied an email
// address in the event data it is used directly, otherwise the handle is
// passed through for the directory in front of the mailbox to resolve.
func (p *TaskProcessor) HandleNotificationDeliverTask(ctx context.Context, t *asynq.Task) error {
	var event services.NotificationEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return fmt.Errorf("failed to unmarshal notification payload: %v: %w", err, asynq.SkipRetry)
	}

	subject, ok := notificationSubjects[event.Template]
	if !ok {
		log.Printf("Unknown notification template %q (event %s)", event.Template, event.EventID)
		return fmt.Errorf("unknown notification template: %w", asynq.SkipRetry)
	}

	to := event.UserID
	if addr, ok := event.Data["email"].(string); ok && addr != "" {
		to = addr
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("To: %s\r\n", to))
	sb.WriteString(fmt.Sprintf("From: %s\r\n", p.cfg.SmtpFromAddress))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	sb.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(subject + ".\r\n\r\n")
	for key, val := range event.Data {
		sb.WriteString(fmt.Sprintf("%s: %v\r\n", key, val))
	}
	sb.WriteString(fmt.Sprintf("event: %s\r\n", event.EventID))

	if err := p.emailSender.Send(ctx, []string{to}, subject, []byte(sb.String())); err != nil {
		log.Printf("Notification delivery failed for event %s: %v", event.EventID, err)
		return err
	}

	log.Printf("Notification %s delivered: template=%s to=%s", event.EventID, event.Template, to)
	return nil
}

// HandleBotActivationCheckTask runs the per-consultation check scheduled at
// submission time. Activation itself re-verifies the status, so a
// consultation that was accepted in the meantime is left alone.
func (p *TaskProcessor) HandleBotActivationCheckTask(ctx context.Context, t *asynq.Task) error {
	var payload BotActivationCheckPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal activation check payload: %v: %w", err, asynq.SkipRetry)
	}

	consultationID, err := primitive.ObjectIDFromHex(payload.ConsultationID)
	if err != nil {
		log.Printf("Invalid consultation id in activation check payload: %s", payload.ConsultationID)
		return fmt.Errorf("invalid consultation id in payload: %w", asynq.SkipRetry)
	}

	result, err := p.botService.Activate(ctx, consultationID)
	if errors.Is(err, services.ErrNotFound) {
		log.Printf("Consultation %s gone before activation check ran.", payload.ConsultationID)
		return fmt.Errorf("consultation not found: %w", asynq.SkipRetry)
	}
	if err != nil {
		return err
	}

	log.Printf("Activation check for consultation %s done (status now %s).", payload.ConsultationID, result.Status)
	return nil
}

// HandleBotActivationScanTask sweeps for overdue pending consultations. The
// scheduler fires it at a fixed cadence; the sweep backstops the
// per-consultation checks, since a check task lost to a Redis flush would
// otherwise strand its consultation in pending forever.
func (p *TaskProcessor) HandleBotActivationScanTask(ctx context.Context, t *asynq.Task) error {
	activated, err := p.botService.ActivateOverdue(ctx)
	if err != nil {
		log.Printf("Activation scan failed: %v", err)
		return err
	}
	if activated > 0 {
		log.Printf("Activation scan engaged the bot on %d consultation(s).", activated)
	}
	return nil
}

// HandleBotReplyTask generates the bot's answer to a requester message.
func (p *TaskProcessor) HandleBotReplyTask(ctx context.Context, t *asynq.Task) error {
	var payload BotReplyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal bot reply payload: %v: %w", err, asynq.SkipRetry)
	}

	consultationID, err := primitive.ObjectIDFromHex(payload.ConsultationID)
	if err != nil {
		log.Printf("Invalid consultation id in bot reply payload: %s", payload.ConsultationID)
		return fmt.Errorf("invalid consultation id in payload: %w", asynq.SkipRetry)
	}

	_, err = p.botService.Respond(ctx, consultationID, payload.Text)
	if errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrInvalidTransition) {
		// The consultation moved on (expert took over, or it finished)
		// between enqueue and processing. Nothing to answer anymore.
		log.Printf("Skipping bot reply for consultation %s: %v", payload.ConsultationID, err)
		return nil
	}
	if err != nil {
		return err
	}
	return nil
}
