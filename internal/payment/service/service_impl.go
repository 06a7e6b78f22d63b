package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	auditdomain "github.com/smallbiznis/invoicecore/internal/audit/domain"
	"github.com/smallbiznis/invoicecore/internal/clock"
	"github.com/smallbiznis/invoicecore/internal/config"
	"github.com/smallbiznis/invoicecore/internal/deposit"
	"github.com/smallbiznis/invoicecore/internal/events"
	invoicedomain "github.com/smallbiznis/invoicecore/internal/invoice/domain"
	obslogger "github.com/smallbiznis/invoicecore/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/invoicecore/internal/observability/metrics"
	"github.com/smallbiznis/invoicecore/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/invoicecore/internal/payment/domain"
	"github.com/smallbiznis/invoicecore/internal/payment/ledger"
	"github.com/smallbiznis/invoicecore/internal/validation"
	"github.com/smallbiznis/invoicecore/pkg/db"
	"github.com/smallbiznis/invoicecore/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const settleAttempts = 3

// errReplayed aborts a transaction that lost the race to insert the same reference.
var errReplayed = errors.New("payment_replayed")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Cfg         config.Config
	Policy      *config.PolicyHolder
	Clock       clock.Clock
	Validate    *validator.Validate
	Repo        paymentdomain.Repository
	InvoiceRepo invoicedomain.Repository
	Adapters    *adapters.Registry
	Outbox      *events.Outbox
	Bus         *events.Bus
	AuditSvc    auditdomain.Service `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	cfg         config.Config
	policy      *config.PolicyHolder
	clock       clock.Clock
	validate    *validator.Validate
	repo        paymentdomain.Repository
	invoiceRepo invoicedomain.Repository
	adapters    *adapters.Registry
	outbox      *events.Outbox
	bus         *events.Bus
	auditSvc    auditdomain.Service
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		cfg:         p.Cfg,
		policy:      p.Policy,
		clock:       p.Clock,
		validate:    p.Validate,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		adapters:    p.Adapters,
		outbox:      p.Outbox,
		bus:         p.Bus,
		auditSvc:    p.AuditSvc,
		obsMetrics:  p.ObsMetrics,
	}
}

var _ paymentdomain.Service = (*Service)(nil)

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

func newReference(prefix string) string {
	return prefix + "_" + strings.ToLower(ulid.Make().String())
}

func (s *Service) RecordOfflinePayment(ctx context.Context, req paymentdomain.RecordOfflinePaymentRequest) (*paymentdomain.PaymentResult, error) {
	if err := validation.Struct(s.validate, req); err != nil {
		return nil, err
	}
	if !req.Method.Valid() {
		return nil, invoicedomain.NewValidationError("method", fmt.Sprintf("unknown payment method %q", req.Method))
	}

	payment := &paymentdomain.Payment{
		ID:          s.genID.Generate(),
		InvoiceID:   req.InvoiceID,
		Reference:   newReference("offline"),
		Channel:     paymentdomain.ChannelOffline,
		Method:      string(req.Method),
		IsDeposit:   req.IsDeposit,
		AmountCents: req.AmountCents,
		Note:        strings.TrimSpace(req.Note),
		CreatedAt:   s.now(),
	}
	return s.applyPayment(ctx, payment, req.ExpectedVersion, nil)
}

// applyPayment writes payment, its allocation and the updated invoice in one
// transaction. A reference that already settled returns the stored payment.
func (s *Service) applyPayment(
	ctx context.Context,
	payment *paymentdomain.Payment,
	expectedVersion int64,
	session *paymentdomain.Session,
) (*paymentdomain.PaymentResult, error) {
	now := payment.CreatedAt
	ctx, _ = correlation.EnsureCorrelationID(ctx)
	var (
		result  paymentdomain.PaymentResult
		emitted []events.Event
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindPaymentByReference(ctx, tx, payment.Reference)
		if err != nil {
			return err
		}
		if existing != nil {
			return errReplayed
		}

		inv, err := s.invoiceRepo.FindByID(ctx, tx, payment.InvoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if expectedVersion != 0 && inv.Version != expectedVersion {
			return invoicedomain.ErrConcurrentModification
		}
		version := inv.Version
		payment.Currency = inv.Currency
		inv.UpdatedAt = now

		evts, err := ledger.Apply(inv, payment, now)
		if err != nil {
			return err
		}

		inserted, err := s.repo.InsertPayment(ctx, tx, payment)
		if err != nil {
			return err
		}
		if !inserted {
			return errReplayed
		}
		recorded, err := s.repo.ListPaymentsByInvoice(ctx, tx, inv.ID)
		if err != nil {
			return err
		}
		if err := ledger.Verify(inv, recorded); err != nil {
			s.log.Error("payment ledger mismatch",
				zap.String("invoice_id", inv.ID.String()),
				zap.String("reference", payment.Reference),
				zap.Error(err),
			)
			return err
		}
		if err := s.invoiceRepo.UpdateVersioned(ctx, tx, inv, version); err != nil {
			return err
		}
		if err := s.repo.InsertAllocation(ctx, tx, &paymentdomain.Allocation{
			ID:                 s.genID.Generate(),
			PaymentID:          payment.ID,
			InvoiceID:          inv.ID,
			AmountAppliedCents: payment.AmountCents,
			CreatedAt:          now,
		}); err != nil {
			return err
		}

		if session != nil {
			session.PaymentID = &payment.ID
			moved, err := s.repo.TransitionSession(ctx, tx, session, paymentdomain.SessionSettled, now)
			if err != nil {
				return err
			}
			if !moved {
				return paymentdomain.ErrSessionClosed
			}
		}

		if err := s.outbox.Append(ctx, tx, now, evts...); err != nil {
			return err
		}
		if err := s.writeAudit(ctx, tx, "payment.applied", inv.ID, inv.Version, map[string]any{
			"payment_id":   payment.ID.String(),
			"reference":    payment.Reference,
			"channel":      string(payment.Channel),
			"amount_cents": payment.AmountCents,
			"is_deposit":   payment.IsDeposit,
			"status":       inv.Status.String(),
		}); err != nil {
			return err
		}

		emitted = evts
		result.Payment = payment
		result.Session = session
		result.Invoice = inv
		return nil
	})
	switch {
	case errors.Is(err, errReplayed):
		return s.replayed(ctx, payment.Reference)
	case errors.Is(err, invoicedomain.ErrConcurrentModification):
		s.obsMetrics.RecordConcurrentModification(ctx, "apply_payment")
		return nil, err
	case err != nil:
		return nil, err
	}

	s.bus.Publish(ctx, emitted...)
	obslogger.WithContext(ctx, s.log).Info("payment applied",
		zap.String("invoice_id", payment.InvoiceID.String()),
		zap.String("reference", payment.Reference),
		zap.String("channel", string(payment.Channel)),
		zap.Int64("amount_cents", payment.AmountCents),
	)
	return &result, nil
}

func (s *Service) replayed(ctx context.Context, reference string) (*paymentdomain.PaymentResult, error) {
	existing, err := s.repo.FindPaymentByReference(ctx, s.db, reference)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, paymentdomain.ErrSessionNotFound
	}
	inv, err := s.invoiceRepo.FindByID(ctx, s.db, existing.InvoiceID)
	if err != nil {
		return nil, err
	}
	session, err := s.repo.FindSessionByReference(ctx, s.db, reference)
	if err != nil {
		return nil, err
	}
	s.obsMetrics.RecordSettlementReplay(ctx, string(existing.Channel))
	s.log.Info("settlement replayed", zap.String("reference", reference))
	return &paymentdomain.PaymentResult{
		Payment:  existing,
		Session:  session,
		Invoice:  inv,
		Replayed: true,
	}, nil
}

// resolveAmount picks the amount to charge when the caller left it at zero.
func resolveAmount(inv *invoicedomain.Invoice, requested int64, isDeposit bool) int64 {
	if requested > 0 {
		return requested
	}
	if isDeposit {
		return deposit.AmountDue(inv)
	}
	return inv.BalanceDueCents
}

// prepareSession loads the invoice and checks it can take amount before any
// provider call is made.
func (s *Service) prepareSession(
	ctx context.Context,
	invoiceID snowflake.ID,
	requested int64,
	isDeposit bool,
	minimum int64,
) (*invoicedomain.Invoice, int64, error) {
	inv, err := s.invoiceRepo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return nil, 0, err
	}
	if inv == nil {
		return nil, 0, invoicedomain.ErrInvoiceNotFound
	}
	amount := resolveAmount(inv, requested, isDeposit)
	if amount <= 0 {
		return nil, 0, invoicedomain.NewValidationError("amount_cents", "nothing is due on this invoice")
	}
	if amount < minimum {
		return nil, 0, invoicedomain.NewValidationError("amount_cents",
			fmt.Sprintf("must be at least %d cents for this channel", minimum))
	}
	if err := ledger.CheckAcceptable(inv, amount, isDeposit); err != nil {
		return nil, 0, err
	}
	return inv, amount, nil
}

func (s *Service) paymentAdapter() (paymentdomain.PaymentAdapter, string, error) {
	cfg := adapters.ConfigFrom(s.cfg)
	adapter, err := s.adapters.NewPaymentAdapter(cfg.Provider, cfg)
	if err != nil {
		return nil, "", err
	}
	return adapter, cfg.Provider, nil
}

func chargeRequest(inv *invoicedomain.Invoice, reference string, amount int64, token string) paymentdomain.ChargeRequest {
	return paymentdomain.ChargeRequest{
		Reference:          reference,
		InvoiceNumber:      inv.InvoiceNumber,
		AmountCents:        amount,
		Currency:           inv.Currency,
		PaymentMethodToken: token,
		Description:        "Invoice " + inv.InvoiceNumber,
		Metadata: map[string]string{
			"invoice_id":     inv.ID.String(),
			"invoice_number": inv.InvoiceNumber,
		},
	}
}

func (s *Service) newSession(inv *invoicedomain.Invoice, channel paymentdomain.Channel, provider, reference string, amount int64, isDeposit bool) *paymentdomain.Session {
	now := s.now()
	return &paymentdomain.Session{
		ID:          s.genID.Generate(),
		InvoiceID:   inv.ID,
		Reference:   reference,
		Channel:     channel,
		Provider:    provider,
		Status:      paymentdomain.SessionPending,
		AmountCents: amount,
		Currency:    inv.Currency,
		IsDeposit:   isDeposit,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// BeginCardCharge creates a card intent. A charge that needs 3-D Secure
// returns a requires_action session to be finished by ConfirmCardCharge.
func (s *Service) BeginCardCharge(ctx context.Context, req paymentdomain.CardChargeRequest) (*paymentdomain.PaymentResult, error) {
	if err := validation.Struct(s.validate, req); err != nil {
		return nil, err
	}
	inv, amount, err := s.prepareSession(ctx, req.InvoiceID, req.AmountCents, req.IsDeposit, s.policy.Get().MinCardChargeCents)
	if err != nil {
		return nil, err
	}
	adapter, provider, err := s.paymentAdapter()
	if err != nil {
		return nil, err
	}

	reference := newReference("card")
	charge, err := adapter.CreateIntent(ctx, chargeRequest(inv, reference, amount, req.PaymentMethodToken))
	if err != nil {
		return nil, fmt.Errorf("create intent: %w", err)
	}

	session := s.newSession(inv, paymentdomain.ChannelCard, provider, reference, amount, req.IsDeposit)
	session.ProviderIntentID = charge.ProviderIntentID
	switch charge.Status {
	case paymentdomain.ChargeRequiresAction:
		session.Status = paymentdomain.SessionRequiresAction
		session.ClientSecret = charge.ClientSecret
		session.NextActionURL = charge.NextActionURL
	case paymentdomain.ChargeFailed:
		session.Status = paymentdomain.SessionFailed
		session.FailureReason = charge.FailureReason
	}
	if err := s.repo.InsertSession(ctx, s.db, session); err != nil {
		return nil, err
	}

	switch charge.Status {
	case paymentdomain.ChargeSucceeded:
		return s.settleSession(ctx, session, charge.ProviderPaymentID, charge.CardBrand, charge.CardLast4)
	case paymentdomain.ChargeFailed:
		s.log.Info("card charge declined", zap.String("reference", reference), zap.String("reason", charge.FailureReason))
		return nil, fmt.Errorf("%w: %s", paymentdomain.ErrChargeDeclined, charge.FailureReason)
	default:
		return &paymentdomain.PaymentResult{Session: session, Invoice: inv}, nil
	}
}

// ConfirmCardCharge finishes a card charge after the customer completed
// authentication. Confirming a settled reference is a replay.
func (s *Service) ConfirmCardCharge(ctx context.Context, reference string) (*paymentdomain.PaymentResult, error) {
	session, err := s.openSession(ctx, reference)
	if errors.Is(err, paymentdomain.ErrSessionClosed) && session != nil && session.Status == paymentdomain.SessionSettled {
		return s.replayed(ctx, session.Reference)
	}
	if err != nil {
		return nil, err
	}
	if session.Channel != paymentdomain.ChannelCard {
		return nil, paymentdomain.ErrChannelUnsupported
	}
	adapter, _, err := s.paymentAdapter()
	if err != nil {
		return nil, err
	}

	charge, err := adapter.ConfirmIntent(ctx, session.ProviderIntentID)
	if err != nil {
		return nil, fmt.Errorf("confirm intent: %w", err)
	}
	switch charge.Status {
	case paymentdomain.ChargeSucceeded:
		return s.settleSession(ctx, session, charge.ProviderPaymentID, charge.CardBrand, charge.CardLast4)
	case paymentdomain.ChargeFailed:
		if _, err := s.FailSession(ctx, session.Reference, charge.FailureReason); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", paymentdomain.ErrChargeDeclined, charge.FailureReason)
	default:
		return &paymentdomain.PaymentResult{Session: session}, nil
	}
}

func (s *Service) CreateCheckoutLink(ctx context.Context, req paymentdomain.CheckoutLinkRequest) (*paymentdomain.Session, error) {
	if err := validation.Struct(s.validate, req); err != nil {
		return nil, err
	}
	inv, amount, err := s.prepareSession(ctx, req.InvoiceID, req.AmountCents, req.IsDeposit, s.policy.Get().MinCardChargeCents)
	if err != nil {
		return nil, err
	}
	adapter, provider, err := s.paymentAdapter()
	if err != nil {
		return nil, err
	}

	reference := newReference("link")
	link, err := adapter.CreateCheckoutLink(ctx, chargeRequest(inv, reference, amount, ""))
	if err != nil {
		return nil, fmt.Errorf("create checkout link: %w", err)
	}
	session := s.newSession(inv, paymentdomain.ChannelCheckoutLink, provider, reference, amount, req.IsDeposit)
	session.ProviderIntentID = link.ProviderIntentID
	session.CheckoutURL = link.URL
	if err := s.repo.InsertSession(ctx, s.db, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) StartTerminalSession(ctx context.Context, req paymentdomain.TerminalSessionRequest) (*paymentdomain.Session, error) {
	if err := validation.Struct(s.validate, req); err != nil {
		return nil, err
	}
	inv, amount, err := s.prepareSession(ctx, req.InvoiceID, req.AmountCents, req.IsDeposit, s.policy.Get().MinTerminalChargeCents)
	if err != nil {
		return nil, err
	}
	adapter, provider, err := s.paymentAdapter()
	if err != nil {
		return nil, err
	}

	reference := newReference("term")
	charge, err := adapter.PushToTerminal(ctx, paymentdomain.TerminalRequest{
		ChargeRequest: chargeRequest(inv, reference, amount, ""),
		TerminalID:    req.TerminalID,
	})
	if err != nil {
		return nil, fmt.Errorf("push to terminal: %w", err)
	}
	session := s.newSession(inv, paymentdomain.ChannelTerminal, provider, reference, amount, req.IsDeposit)
	session.ProviderIntentID = charge.ProviderIntentID
	session.TerminalID = req.TerminalID
	if err := s.repo.InsertSession(ctx, s.db, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Settle applies a provider confirmation. Replaying a reference that already
// settled returns the stored payment without touching the invoice.
func (s *Service) Settle(ctx context.Context, event paymentdomain.SettlementEvent) (*paymentdomain.PaymentResult, error) {
	event.Reference = strings.TrimSpace(event.Reference)
	if event.Reference == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	if event.Type == paymentdomain.EventTypePaymentFailed {
		session, err := s.FailSession(ctx, event.Reference, event.FailureReason)
		if err != nil {
			return nil, err
		}
		return &paymentdomain.PaymentResult{Session: session}, nil
	}

	existing, err := s.repo.FindPaymentByReference(ctx, s.db, event.Reference)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.replayed(ctx, event.Reference)
	}

	session, err := s.openSession(ctx, event.Reference)
	if err != nil {
		return nil, err
	}
	if event.AmountCents != 0 && event.AmountCents != session.AmountCents {
		return nil, fmt.Errorf("%w: session %d, event %d", paymentdomain.ErrAmountMismatch, session.AmountCents, event.AmountCents)
	}
	return s.settleSession(ctx, session, event.ProviderPaymentID, event.CardBrand, event.CardLast4)
}

// settleSession retries version conflicts and transient database failures
// since provider confirmations must not be lost to a concurrent edit.
func (s *Service) settleSession(
	ctx context.Context,
	session *paymentdomain.Session,
	providerPaymentID, cardBrand, cardLast4 string,
) (*paymentdomain.PaymentResult, error) {
	var lastErr error
	for attempt := 0; attempt < settleAttempts; attempt++ {
		payment := &paymentdomain.Payment{
			ID:                s.genID.Generate(),
			InvoiceID:         session.InvoiceID,
			Reference:         session.Reference,
			Channel:           session.Channel,
			IsDeposit:         session.IsDeposit,
			AmountCents:       session.AmountCents,
			CardBrand:         cardBrand,
			CardLast4:         cardLast4,
			Provider:          session.Provider,
			ProviderPaymentID: providerPaymentID,
			CreatedAt:         s.now(),
		}
		result, err := s.applyPayment(ctx, payment, 0, session)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, invoicedomain.ErrConcurrentModification) && !db.IsTransient(err) {
			if IsRejection(err) {
				if _, failErr := s.FailSession(ctx, session.Reference, err.Error()); failErr != nil {
					s.log.Warn("failed to close rejected session", zap.String("reference", session.Reference), zap.Error(failErr))
				}
			}
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// IsRejection reports errors where the invoice refused the money outright.
func IsRejection(err error) bool {
	return errors.Is(err, invoicedomain.ErrOverpayment) ||
		errors.Is(err, invoicedomain.ErrIllegalTransition) ||
		errors.Is(err, invoicedomain.ErrValidation)
}

// openSession returns the session with ErrSessionClosed when it can no longer settle.
func (s *Service) openSession(ctx context.Context, reference string) (*paymentdomain.Session, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, paymentdomain.ErrSessionNotFound
	}
	session, err := s.repo.FindSessionByReference(ctx, s.db, reference)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, paymentdomain.ErrSessionNotFound
	}
	if !session.Status.Open() {
		return session, paymentdomain.ErrSessionClosed
	}
	return session, nil
}

func (s *Service) FailSession(ctx context.Context, reference, reason string) (*paymentdomain.Session, error) {
	session, err := s.openSession(ctx, reference)
	if err != nil {
		return nil, err
	}
	session.FailureReason = strings.TrimSpace(reason)
	if err := s.closeSession(ctx, session, paymentdomain.SessionFailed, "payment.failed"); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) Abandon(ctx context.Context, reference string) (*paymentdomain.Session, error) {
	session, err := s.openSession(ctx, reference)
	if err != nil {
		return nil, err
	}
	if err := s.cancelAtProvider(ctx, session); err != nil {
		s.log.Warn("provider cancel failed", zap.String("reference", session.Reference), zap.Error(err))
	}
	if err := s.closeSession(ctx, session, paymentdomain.SessionAbandoned, "payment.abandoned"); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) AbandonStale(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	sessions, err := s.repo.ListStaleSessions(ctx, s.db, olderThan, limit)
	if err != nil {
		return 0, err
	}
	abandoned := 0
	for i := range sessions {
		if _, err := s.Abandon(ctx, sessions[i].Reference); err != nil {
			if errors.Is(err, paymentdomain.ErrSessionClosed) {
				continue
			}
			return abandoned, err
		}
		abandoned++
	}
	return abandoned, nil
}

func (s *Service) cancelAtProvider(ctx context.Context, session *paymentdomain.Session) error {
	if session.ProviderIntentID == "" {
		return nil
	}
	cfg := adapters.ConfigFrom(s.cfg)
	adapter, err := s.adapters.NewPaymentAdapter(session.Provider, cfg)
	if err != nil {
		return err
	}
	return adapter.Cancel(ctx, session.ProviderIntentID)
}

func (s *Service) closeSession(ctx context.Context, session *paymentdomain.Session, to paymentdomain.SessionStatus, action string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		moved, err := s.repo.TransitionSession(ctx, tx, session, to, s.now())
		if err != nil {
			return err
		}
		if !moved {
			return paymentdomain.ErrSessionClosed
		}
		return s.writeAudit(ctx, tx, action, session.InvoiceID, 0, map[string]any{
			"reference":      session.Reference,
			"channel":        string(session.Channel),
			"amount_cents":   session.AmountCents,
			"failure_reason": session.FailureReason,
		})
	})
}

func (s *Service) ListPayments(ctx context.Context, invoiceID snowflake.ID) ([]paymentdomain.Payment, error) {
	if invoiceID == 0 {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}
	return s.repo.ListPaymentsByInvoice(ctx, s.db, invoiceID)
}

// writeAudit runs inside the caller's transaction, so a failure rolls the change back.
func (s *Service) writeAudit(ctx context.Context, tx *gorm.DB, action string, invoiceID snowflake.ID, version int64, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	if err := s.auditSvc.Record(ctx, tx, auditdomain.Entry{
		Action:         action,
		InvoiceID:      invoiceID,
		InvoiceVersion: version,
		Metadata:       metadata,
	}); err != nil {
		return fmt.Errorf("audit %s: %w", action, err)
	}
	return nil
}
