package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicecore/internal/clock"
	"github.com/smallbiznis/invoicecore/internal/config"
	"github.com/smallbiznis/invoicecore/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/invoicecore/internal/payment/domain"
	paymentservice "github.com/smallbiznis/invoicecore/internal/payment/service"
	"github.com/smallbiznis/invoicecore/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       paymentdomain.Repository
	PaymentSvc *paymentservice.Service
	Adapters   *adapters.Registry
	Cfg        config.Config
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       paymentdomain.Repository
	paymentSvc *paymentservice.Service
	adapters   *adapters.Registry
	cfg        config.Config
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.webhook"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		paymentSvc: p.PaymentSvc,
		adapters:   p.Adapters,
		cfg:        p.Cfg,
	}
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	ctx, _ = correlation.FromHeaders(ctx, headers)
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if s.adapters == nil || !s.adapters.ProviderExists(provider) {
		return paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	adapter, err := s.adapters.NewAdapter(provider, adapters.ConfigFrom(s.cfg))
	if err != nil {
		return err
	}
	if err := adapter.Verify(ctx, payload, headers); err != nil {
		return err
	}
	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.log.Debug("webhook event ignored", zap.String("provider", provider))
			return nil
		}
		return err
	}
	event.Provider = provider
	if err := validateEvent(event); err != nil {
		return err
	}

	now := s.clock.Now().UTC()
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Reference:       event.Reference,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return paymentdomain.ErrEventAlreadyProcessed
		}
	}

	if _, err := s.paymentSvc.Settle(ctx, *event); err != nil {
		// Closed and rejected sessions are final; redelivery cannot change them.
		switch {
		case errors.Is(err, paymentdomain.ErrSessionClosed):
			s.log.Info("webhook for closed session",
				zap.String("provider", provider),
				zap.String("reference", event.Reference),
			)
		case paymentservice.IsRejection(err):
			s.log.Warn("settlement rejected by invoice",
				zap.String("provider", provider),
				zap.String("reference", event.Reference),
				zap.Error(err),
			)
		default:
			return err
		}
	}
	return s.repo.MarkProcessed(ctx, s.db, stored.ID, now)
}

func validateEvent(event *paymentdomain.SettlementEvent) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	event.Reference = strings.TrimSpace(event.Reference)
	if event.Reference == "" {
		return paymentdomain.ErrInvalidEvent
	}
	switch event.Type {
	case paymentdomain.EventTypePaymentSucceeded:
		if event.AmountCents <= 0 {
			return paymentdomain.ErrInvalidEvent
		}
	case paymentdomain.EventTypePaymentFailed:
	default:
		return paymentdomain.ErrInvalidEvent
	}
	return nil
}
