package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/halaqa-api/internal/models"
	"github.com/noah-isme/halaqa-api/pkg/config"
	"github.com/noah-isme/halaqa-api/pkg/jobs"
	"github.com/noah-isme/halaqa-api/pkg/mailer"
)

type notificationPublisher interface {
	Publish(ctx context.Context, channel string, value interface{}) (int64, error)
}

type recipientDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// delivery tracks per-channel progress so retries skip channels that already succeeded.
type delivery struct {
	notification models.Notification
	published    bool
	emailed      bool
}

// NotificationService fans workflow events out to Redis pub/sub and email on
// a background queue. Notify never blocks the caller and never fails it.
type NotificationService struct {
	queue     *jobs.Queue
	publisher notificationPublisher
	mail      mailer.Mailer
	users     recipientDirectory
	metrics   *MetricsService
	prefix    string
	enabled   bool
	logger    *zap.Logger
}

// NewNotificationService wires the delivery queue. A nil mailer disables email.
func NewNotificationService(publisher notificationPublisher, mail mailer.Mailer, users recipientDirectory, metrics *MetricsService, cfg config.NotificationConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{
		publisher: publisher,
		mail:      mail,
		users:     users,
		metrics:   metrics,
		prefix:    cfg.ChannelPrefix,
		enabled:   cfg.Enabled,
		logger:    logger,
	}
	s.queue = jobs.NewQueue("notifications", s.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	if s == nil || !s.enabled {
		return
	}
	s.queue.Start(ctx)
}

// Stop drains workers.
func (s *NotificationService) Stop() {
	if s == nil {
		return
	}
	s.queue.Stop()
}

// Notify enqueues a notification; overflow and shutdown are logged and dropped.
func (s *NotificationService) Notify(n models.Notification) {
	if s == nil || !s.enabled {
		return
	}
	if n.RecipientID == "" && n.AcademyID == "" {
		return
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	job := jobs.Job{ID: uuid.NewString(), Type: string(n.Type), Payload: &delivery{notification: n}}
	if err := s.queue.TryEnqueue(job); err != nil {
		s.metrics.RecordNotification("queue", err)
		s.logger.Warn("notification dropped", zap.String("type", string(n.Type)), zap.String("join_request_id", n.JoinRequestID), zap.Error(err))
	}
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	d, ok := job.Payload.(*delivery)
	if !ok {
		return fmt.Errorf("unexpected notification payload %T", job.Payload)
	}
	n := d.notification

	var errs []error
	if !d.published && s.publisher != nil {
		_, err := s.publisher.Publish(ctx, s.channel(n), n)
		s.metrics.RecordNotification("pubsub", err)
		if err != nil {
			errs = append(errs, err)
		} else {
			d.published = true
		}
	}

	if !d.emailed && s.mail != nil && n.RecipientID != "" {
		err := s.email(ctx, n)
		s.metrics.RecordNotification("email", err)
		if err != nil {
			errs = append(errs, err)
		} else {
			d.emailed = true
		}
	}
	return errors.Join(errs...)
}

func (s *NotificationService) email(ctx context.Context, n models.Notification) error {
	if s.users == nil {
		return nil
	}
	user, err := s.users.FindByID(ctx, n.RecipientID)
	if err != nil {
		return fmt.Errorf("load notification recipient: %w", err)
	}
	if !user.Active || user.Email == "" {
		return nil
	}
	return s.mail.Send(ctx, mailer.Message{
		To:      []mailer.Address{{Name: user.FullName, Email: user.Email}},
		Subject: n.Subject,
		Text:    n.Body,
	})
}

// channel routes user-addressed events to the user's channel and
// academy-wide events to the academy reviewer channel.
func (s *NotificationService) channel(n models.Notification) string {
	if n.RecipientID != "" {
		return fmt.Sprintf("%s:user:%s", s.prefix, n.RecipientID)
	}
	return fmt.Sprintf("%s:academy:%s", s.prefix, n.AcademyID)
}
