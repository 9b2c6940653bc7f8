package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/halaqa-api/internal/models"
	"github.com/noah-isme/halaqa-api/pkg/config"
	"github.com/noah-isme/halaqa-api/pkg/jobs"
	"github.com/noah-isme/halaqa-api/pkg/mailer"
)

type publisherStub struct {
	mu       sync.Mutex
	channels []string
	fail     int
}

func (p *publisherStub) Publish(ctx context.Context, channel string, value interface{}) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail > 0 {
		p.fail--
		return 0, errors.New("redis unavailable")
	}
	p.channels = append(p.channels, channel)
	return 1, nil
}

func (p *publisherStub) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.channels...)
}

type mailerStub struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *mailerStub) Send(ctx context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func notificationConfig() config.NotificationConfig {
	return config.NotificationConfig{
		Enabled:       true,
		Workers:       1,
		BufferSize:    8,
		MaxRetries:    2,
		RetryDelay:    time.Millisecond,
		ChannelPrefix: "halaqa:notifications",
	}
}

func TestNotificationServiceDeliverRoutesChannels(t *testing.T) {
	users := &memUsers{}
	users.add(models.User{ID: "student-1", Email: "student@example.com", FullName: "Aisyah", Active: true})
	publisher := &publisherStub{}
	mail := &mailerStub{}
	svc := NewNotificationService(publisher, mail, users, nil, notificationConfig(), zap.NewNop())

	err := svc.deliver(context.Background(), jobs.Job{Payload: &delivery{notification: models.Notification{
		Type:        models.NotificationJoinRequestApproved,
		RecipientID: "student-1",
		Subject:     "Join request approved",
		Body:        "Welcome",
	}}})
	require.NoError(t, err)

	err = svc.deliver(context.Background(), jobs.Job{Payload: &delivery{notification: models.Notification{
		Type:      models.NotificationJoinRequestReassigned,
		AcademyID: "acad-1",
	}}})
	require.NoError(t, err)

	assert.Equal(t, []string{"halaqa:notifications:user:student-1", "halaqa:notifications:academy:acad-1"}, publisher.published())
	require.Len(t, mail.sent, 1)
	assert.Equal(t, "student@example.com", mail.sent[0].To[0].Email)
	assert.Equal(t, "Join request approved", mail.sent[0].Subject)
}

func TestNotificationServiceRetriesOnlyFailedChannels(t *testing.T) {
	users := &memUsers{}
	users.add(models.User{ID: "teacher-1", Email: "teacher@example.com", Active: true})
	publisher := &publisherStub{fail: 1}
	mail := &mailerStub{}
	metrics := NewMetricsService()
	svc := NewNotificationService(publisher, mail, users, metrics, notificationConfig(), zap.NewNop())

	d := &delivery{notification: models.Notification{Type: models.NotificationJoinRequestSubmitted, RecipientID: "teacher-1"}}
	err := svc.deliver(context.Background(), jobs.Job{Payload: d})
	require.Error(t, err)
	assert.False(t, d.published)
	assert.True(t, d.emailed)

	require.NoError(t, svc.deliver(context.Background(), jobs.Job{Payload: d}))
	assert.Len(t, publisher.published(), 1)
	assert.Len(t, mail.sent, 1)
}

func TestNotificationServiceSkipsInactiveRecipients(t *testing.T) {
	users := &memUsers{}
	users.add(models.User{ID: "student-1", Email: "student@example.com", Active: false})
	mail := &mailerStub{}
	svc := NewNotificationService(nil, mail, users, nil, notificationConfig(), zap.NewNop())

	err := svc.deliver(context.Background(), jobs.Job{Payload: &delivery{notification: models.Notification{RecipientID: "student-1"}}})
	require.NoError(t, err)
	assert.Empty(t, mail.sent)
}

func TestNotificationServiceNotifyIsAsynchronous(t *testing.T) {
	publisher := &publisherStub{}
	svc := NewNotificationService(publisher, nil, nil, nil, notificationConfig(), zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	svc.Notify(models.Notification{Type: models.NotificationJoinRequestCancelled, RecipientID: "teacher-1"})
	svc.Notify(models.Notification{Type: models.NotificationJoinRequestCancelled})

	assert.Eventually(t, func() bool { return len(publisher.published()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "halaqa:notifications:user:teacher-1", publisher.published()[0])
}

func TestNotificationServiceDisabledDropsSilently(t *testing.T) {
	publisher := &publisherStub{}
	cfg := notificationConfig()
	cfg.Enabled = false
	svc := NewNotificationService(publisher, nil, nil, nil, cfg, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	svc.Notify(models.Notification{RecipientID: "teacher-1"})
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, publisher.published())

	var nilSvc *NotificationService
	assert.NotPanics(t, func() { nilSvc.Notify(models.Notification{RecipientID: "x"}) })
}
