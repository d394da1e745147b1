package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/igreja/tesouraria/internal/metrics"
	client "github.com/igreja/tesouraria/pkg/clients/whatsapp"
)

const sendTimeout = 10 * time.Second

// Permission is the outcome of a permission request.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Notification is one message for the treasurer.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	// Tag groups notifications of the same kind, e.g. "nova-receita".
	Tag string `json:"tag"`
	// RequireInteraction marks messages the treasurer is expected to act
	// on. Their delivery failures are logged as errors.
	RequireInteraction bool `json:"requireInteraction"`
}

// Notifier is what the rest of the application sends notifications
// through. Sends never fail from the caller's point of view.
type Notifier interface {
	RequestPermission(ctx context.Context) Permission
	Send(ctx context.Context, n Notification)
}

// Service delivers notifications as WhatsApp messages to one recipient.
// Deliveries run in the background; Wait blocks until they finish.
type Service struct {
	client    client.Client
	recipient string
	logger    *zap.Logger
	metrics   *metrics.Metrics

	inflight sync.WaitGroup
}

var _ Notifier = (*Service)(nil)

// NewService wires a notifier. With a nil client or an empty recipient
// every permission request is denied and sends are dropped.
func NewService(c client.Client, recipient string, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client:    c,
		recipient: recipient,
		logger:    logger,
		metrics:   m,
	}
}

// RequestPermission reports whether notifications can be delivered.
func (s *Service) RequestPermission(context.Context) Permission {
	if s.client == nil || s.recipient == "" {
		return PermissionDenied
	}
	return PermissionGranted
}

// Send queues n for delivery. Errors are logged and counted, never
// returned.
func (s *Service) Send(ctx context.Context, n Notification) {
	if s.RequestPermission(ctx) != PermissionGranted {
		s.logger.Debug("notification dropped, permission denied", zap.String("tag", n.Tag))
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()

		id, err := s.client.SendText(sendCtx, client.TextMessage{
			To:   s.recipient,
			Body: format(n),
		})
		s.metrics.ObserveNotification(n.Tag, err)
		if err != nil {
			log := s.logger.Warn
			if n.RequireInteraction {
				log = s.logger.Error
			}
			log("notification delivery failed", zap.String("tag", n.Tag), zap.Error(err))
			return
		}
		s.logger.Info("notification delivered", zap.String("tag", n.Tag), zap.String("message_id", id))
	}()
}

// Wait blocks until queued deliveries are done.
func (s *Service) Wait() {
	s.inflight.Wait()
}

func format(n Notification) string {
	if n.Title == "" {
		return n.Body
	}
	if n.Body == "" {
		return fmt.Sprintf("*%s*", n.Title)
	}
	return fmt.Sprintf("*%s*\n%s", n.Title, n.Body)
}
