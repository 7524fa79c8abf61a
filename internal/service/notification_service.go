package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/colegio-adp-api/pkg/errors"
	"github.com/noah-isme/colegio-adp-api/pkg/mailer"
)

// ContactRequest is a message sent through the school contact form.
type ContactRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Subject string `json:"subject" validate:"required"`
	Message string `json:"message" validate:"required"`
}

// NotificationService relays contact-form messages to the school inbox.
type NotificationService struct {
	mail           mailer.Mailer
	metrics        *MetricsService
	validator      *validator.Validate
	logger         *zap.Logger
	contactAddress string
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(mail mailer.Mailer, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, contactAddress string) *NotificationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{mail: mail, metrics: metrics, validator: validate, logger: logger, contactAddress: contactAddress}
}

// SendContactMessage forwards the message to the configured school inbox.
func (s *NotificationService) SendContactMessage(ctx context.Context, req ContactRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid contact payload")
	}
	if s.contactAddress == "" {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "no contact address configured")
	}

	msg := mailer.Message{
		ToAddress: s.contactAddress,
		Subject:   fmt.Sprintf("[Contacto] %s", req.Subject),
		TextBody:  fmt.Sprintf("De: %s <%s>\n\n%s", req.Name, req.Email, req.Message),
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		s.metrics.RecordMailDelivery(false)
		s.logger.Error("contact message delivery failed", zap.String("from", req.Email), zap.Error(err))
		return appErrors.Clone(appErrors.ErrMailDelivery, "")
	}
	s.metrics.RecordMailDelivery(true)
	return nil
}
