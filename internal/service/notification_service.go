package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/license-service/internal/config"
	"github.com/spec-kit/license-service/internal/events"
)

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventLicenseCreated, n.handleLicenseCreated)
	n.dispatcher.Subscribe(events.EventLicenseRedeemed, n.handleLicenseRedeemed)
	n.dispatcher.Subscribe(events.EventLicenseStatusChanged, n.handleLicenseStatusChanged)
	n.dispatcher.Subscribe(events.EventLicenseDeleted, n.handleLicenseDeleted)
}

func (n *NotificationService) handleLicenseCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("LicenseCreated", zap.String("license_id", event.LicenseID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleLicenseRedeemed(ctx context.Context, event events.Event) error {
	n.logger.Info("LicenseRedeemed", zap.String("license_id", event.LicenseID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleLicenseStatusChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("LicenseStatusChanged", zap.String("license_id", event.LicenseID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleLicenseDeleted(ctx context.Context, event events.Event) error {
	n.logger.Info("LicenseDeleted", zap.String("license_id", event.LicenseID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("license_id", event.LicenseID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("license_id", event.LicenseID),
		zap.String("event_type", string(event.Type)))
}
