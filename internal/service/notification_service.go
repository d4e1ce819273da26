package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/loan-desk-api/internal/models"
	"github.com/noah-isme/loan-desk-api/pkg/export"
	"github.com/noah-isme/loan-desk-api/pkg/jobs"
)

// Attachment is a file sent along with a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is an outgoing borrower notification.
type Message struct {
	From        string
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Mailer delivers messages. Delivery itself is owned by an external service.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of delivering them.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer constructs a LogMailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

// Send logs the message envelope.
func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.Info("notification dispatched",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("attachments", len(msg.Attachments)),
	)
	return nil
}

var notificationSubjects = map[string]map[models.NotificationKind]string{
	"es": {
		models.NotificationLoanApproved:    "Tu préstamo ha sido aprobado",
		models.NotificationRequestRejected: "Tu solicitud ha sido rechazada",
	},
	"en": {
		models.NotificationLoanApproved:    "Your loan has been approved",
		models.NotificationRequestRejected: "Your request has been rejected",
	},
	"ca": {
		models.NotificationLoanApproved:    "El teu préstec ha estat aprovat",
		models.NotificationRequestRejected: "La teva sol·licitud ha estat rebutjada",
	},
}

// NotificationConfig tunes dispatch.
type NotificationConfig struct {
	Enabled        bool
	Workers        int
	Retries        int
	DefaultLocale  string
	FromAddress    string
	AttachLoanSlip bool
}

// NotificationService queues borrower notifications and renders them in the background.
type NotificationService struct {
	queue    *jobs.Queue[models.Notification]
	mailer   Mailer
	renderer *export.LoanSlipRenderer
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      NotificationConfig
}

// NewNotificationService constructs the service and its worker queue.
func NewNotificationService(mailer Mailer, renderer *export.LoanSlipRenderer, metrics *MetricsService, logger *zap.Logger, cfg NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mailer == nil {
		mailer = NewLogMailer(logger)
	}
	if renderer == nil {
		renderer = export.NewLoanSlipRenderer("")
	}
	if _, ok := notificationSubjects[cfg.DefaultLocale]; !ok {
		cfg.DefaultLocale = "es"
	}
	s := &NotificationService{
		mailer:   mailer,
		renderer: renderer,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
	s.queue = jobs.New("notifications", s.handle, jobs.Options[models.Notification]{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		RetryDelay: 2 * time.Second,
		Logger:     logger,
		OnGiveUp: func(task jobs.Task[models.Notification], err error) {
			s.metrics.RecordNotification(task.Payload.Kind, "abandoned")
		},
	})
	return s
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// ResolveLocale returns a supported locale, falling back to the default.
func (s *NotificationService) ResolveLocale(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if _, ok := notificationSubjects[locale]; ok {
		return locale
	}
	return s.cfg.DefaultLocale
}

// Trigger enqueues a notification without blocking the caller.
func (s *NotificationService) Trigger(ctx context.Context, n models.Notification) error {
	if !s.cfg.Enabled {
		s.logger.Debug("notifications disabled, skipping", zap.String("kind", string(n.Kind)), zap.String("request_id", n.RequestID))
		return nil
	}
	n.Locale = s.ResolveLocale(n.Locale)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if err := s.queue.Offer(uuid.NewString(), n); err != nil {
		s.metrics.RecordNotification(n.Kind, "dropped")
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

func (s *NotificationService) handle(ctx context.Context, task jobs.Task[models.Notification]) error {
	n := task.Payload
	msg, err := s.Compose(n)
	if err != nil {
		s.metrics.RecordNotification(n.Kind, OutcomeError)
		return err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.metrics.RecordNotification(n.Kind, OutcomeError)
		return fmt.Errorf("send notification: %w", err)
	}
	s.metrics.RecordNotification(n.Kind, OutcomeSuccess)
	return nil
}

// Compose builds the message for a notification, attaching the loan slip on approval.
func (s *NotificationService) Compose(n models.Notification) (Message, error) {
	locale := s.ResolveLocale(n.Locale)
	msg := Message{
		From:    s.cfg.FromAddress,
		To:      n.BorrowerEmail,
		Subject: notificationSubjects[locale][n.Kind],
	}
	switch n.Kind {
	case models.NotificationLoanApproved:
		if n.Loan == nil {
			return Message{}, fmt.Errorf("approval notification without loan")
		}
		msg.Body = fmt.Sprintf("Loan %s: %d item(s), due %s.", n.Loan.ID, len(n.Loan.Items), n.Loan.DueAt.Format("2006-01-02 15:04"))
		if s.cfg.AttachLoanSlip && len(n.Units) > 0 {
			pdf, err := s.renderer.Render(loanSlip(n))
			if err != nil {
				return Message{}, fmt.Errorf("render loan slip: %w", err)
			}
			msg.Attachments = append(msg.Attachments, Attachment{
				Filename:    fmt.Sprintf("loan-%s.pdf", n.Loan.ID),
				ContentType: "application/pdf",
				Data:        pdf,
			})
		}
	case models.NotificationRequestRejected:
		msg.Body = n.Reason
	default:
		return Message{}, fmt.Errorf("unsupported notification kind %q", n.Kind)
	}
	return msg, nil
}

func loanSlip(n models.Notification) export.LoanSlip {
	slip := export.LoanSlip{
		LoanID:       n.Loan.ID,
		BorrowerName: n.BorrowerName,
		Category:     string(n.Loan.Category),
		StartAt:      n.Loan.StartAt,
		DueAt:        n.Loan.DueAt,
	}
	for _, unit := range n.Units {
		slip.Lines = append(slip.Lines, export.SlipLine{Kind: string(unit.Kind), Code: unit.Code, Title: unit.Title})
	}
	return slip
}
