package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/loan-desk-api/internal/models"
	"github.com/noah-isme/loan-desk-api/pkg/export"
)

type mailerStub struct {
	mu       sync.Mutex
	sent     []Message
	failures int
	done     chan struct{}
}

func (m *mailerStub) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, msg)
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	return nil
}

func approvedNotification(locale string) models.Notification {
	book := "copy-1"
	return models.Notification{
		Kind:          models.NotificationLoanApproved,
		RequestID:     "req-1",
		BorrowerEmail: "ana@example.com",
		BorrowerName:  "Ana",
		Locale:        locale,
		Loan: &models.Loan{
			ID:       "loan-1",
			Category: models.LoanCategoryPersonalUse,
			StartAt:  time.Date(2025, time.February, 1, 11, 0, 0, 0, time.UTC),
			DueAt:    time.Date(2025, time.February, 3, 9, 0, 0, 0, time.UTC),
			Items:    []models.LoanItem{{ID: "li-1", BookCopyID: &book}},
		},
		Units: []models.PhysicalUnit{{ID: "copy-1", Kind: models.UnitKindBookCopy, Code: "B-001", Title: "Don Quijote"}},
	}
}

func TestNotificationComposeLocales(t *testing.T) {
	svc := NewNotificationService(&mailerStub{}, nil, NewMetricsService(), nil, NotificationConfig{Enabled: true, DefaultLocale: "es", FromAddress: "library@example.com"})

	msg, err := svc.Compose(approvedNotification("en"))
	require.NoError(t, err)
	assert.Equal(t, "Your loan has been approved", msg.Subject)
	assert.Equal(t, "ana@example.com", msg.To)
	assert.Equal(t, "library@example.com", msg.From)
	assert.Empty(t, msg.Attachments)

	msg, err = svc.Compose(approvedNotification("fr"))
	require.NoError(t, err)
	assert.Equal(t, "Tu préstamo ha sido aprobado", msg.Subject)

	msg, err = svc.Compose(models.Notification{Kind: models.NotificationRequestRejected, Locale: "CA", Reason: "Damaged: cover torn"})
	require.NoError(t, err)
	assert.Equal(t, "La teva sol·licitud ha estat rebutjada", msg.Subject)
	assert.Equal(t, "Damaged: cover torn", msg.Body)
}

func TestNotificationComposeAttachesLoanSlip(t *testing.T) {
	svc := NewNotificationService(&mailerStub{}, export.NewLoanSlipRenderer("Library"), NewMetricsService(), nil, NotificationConfig{Enabled: true, AttachLoanSlip: true})

	msg, err := svc.Compose(approvedNotification("es"))
	require.NoError(t, err)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "loan-loan-1.pdf", msg.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)
	assert.Equal(t, "%PDF", string(msg.Attachments[0].Data[:4]))
}

func TestNotificationComposeApprovalWithoutLoan(t *testing.T) {
	svc := NewNotificationService(&mailerStub{}, nil, NewMetricsService(), nil, NotificationConfig{Enabled: true})
	_, err := svc.Compose(models.Notification{Kind: models.NotificationLoanApproved})
	require.Error(t, err)
}

func TestNotificationTriggerDeliversWithRetry(t *testing.T) {
	mailer := &mailerStub{failures: 1, done: make(chan struct{})}
	done := mailer.done
	svc := NewNotificationService(mailer, nil, NewMetricsService(), nil, NotificationConfig{Enabled: true, Workers: 1, Retries: 2})
	svc.Start(context.Background())
	defer svc.Stop()

	require.NoError(t, svc.Trigger(context.Background(), approvedNotification("en")))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("notification was not delivered")
	}
	mailer.mu.Lock()
	defer mailer.mu.Unlock()
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "Your loan has been approved", mailer.sent[0].Subject)
}

func TestNotificationTriggerDisabled(t *testing.T) {
	mailer := &mailerStub{}
	svc := NewNotificationService(mailer, nil, NewMetricsService(), nil, NotificationConfig{Enabled: false})
	svc.Start(context.Background())
	defer svc.Stop()

	require.NoError(t, svc.Trigger(context.Background(), approvedNotification("es")))
	assert.Empty(t, mailer.sent)
}

func TestNotificationTriggerNotStarted(t *testing.T) {
	svc := NewNotificationService(&mailerStub{}, nil, NewMetricsService(), nil, NotificationConfig{Enabled: true})
	require.Error(t, svc.Trigger(context.Background(), approvedNotification("es")))
}

func TestNotificationAbandonedAfterRetries(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewNotificationService(&mailerStub{failures: 1}, nil, metrics, nil, NotificationConfig{Enabled: true, Workers: 1, Retries: 0})
	svc.Start(context.Background())
	defer svc.Stop()

	require.NoError(t, svc.Trigger(context.Background(), approvedNotification("es")))
	require.Eventually(t, func() bool {
		return metrics.Snapshot().Notifications["LOAN_APPROVED:abandoned"] == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), metrics.Snapshot().Notifications["LOAN_APPROVED:error"])
}
