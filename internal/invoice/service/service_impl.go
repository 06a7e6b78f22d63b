package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	auditdomain "github.com/smallbiznis/invoicecore/internal/audit/domain"
	bookingdomain "github.com/smallbiznis/invoicecore/internal/booking/domain"
	"github.com/smallbiznis/invoicecore/internal/booking/linkage"
	catalogdomain "github.com/smallbiznis/invoicecore/internal/catalog/domain"
	"github.com/smallbiznis/invoicecore/internal/clock"
	"github.com/smallbiznis/invoicecore/internal/config"
	contactdomain "github.com/smallbiznis/invoicecore/internal/contact/domain"
	coupondomain "github.com/smallbiznis/invoicecore/internal/coupon/domain"
	couponvalidator "github.com/smallbiznis/invoicecore/internal/coupon/validator"
	"github.com/smallbiznis/invoicecore/internal/events"
	"github.com/smallbiznis/invoicecore/internal/deposit"
	"github.com/smallbiznis/invoicecore/internal/invoice/amendment"
	invoicedomain "github.com/smallbiznis/invoicecore/internal/invoice/domain"
	"github.com/smallbiznis/invoicecore/internal/invoice/format"
	"github.com/smallbiznis/invoicecore/internal/invoice/render"
	"github.com/smallbiznis/invoicecore/internal/invoice/statemachine"
	"github.com/smallbiznis/invoicecore/internal/invoice/totals"
	obslogger "github.com/smallbiznis/invoicecore/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/invoicecore/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/invoicecore/internal/payment/domain"
	"github.com/smallbiznis/invoicecore/internal/validation"
	"github.com/smallbiznis/invoicecore/pkg/db"
	"github.com/smallbiznis/invoicecore/pkg/db/pagination"
	"github.com/smallbiznis/invoicecore/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sequenceName = "invoice"

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Policy      *config.PolicyHolder
	Validate    *validator.Validate
	Repo        invoicedomain.Repository
	ContactRepo contactdomain.Repository
	BookingRepo bookingdomain.Repository
	CatalogRepo catalogdomain.Repository
	CouponRepo  coupondomain.Repository
	PaymentRepo paymentdomain.Repository
	Renderer    render.Renderer
	Outbox      *events.Outbox
	Bus         *events.Bus
	AuditSvc    auditdomain.Service `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	clock       clock.Clock
	policy      *config.PolicyHolder
	validate    *validator.Validate
	repo        invoicedomain.Repository
	contactRepo contactdomain.Repository
	bookingRepo bookingdomain.Repository
	catalogRepo catalogdomain.Repository
	couponRepo  coupondomain.Repository
	paymentRepo paymentdomain.Repository
	renderer    render.Renderer
	outbox      *events.Outbox
	bus         *events.Bus
	auditSvc    auditdomain.Service
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("invoice.service"),

		genID:       p.GenID,
		clock:       p.Clock,
		policy:      p.Policy,
		validate:    p.Validate,
		repo:        p.Repo,
		contactRepo: p.ContactRepo,
		bookingRepo: p.BookingRepo,
		catalogRepo: p.CatalogRepo,
		couponRepo:  p.CouponRepo,
		paymentRepo: p.PaymentRepo,
		renderer:    p.Renderer,
		outbox:      p.Outbox,
		bus:         p.Bus,
		auditSvc:    p.AuditSvc,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

func (s *Service) newID() snowflake.ID {
	return s.genID.Generate()
}

// mutation changes a loaded invoice in memory and returns the events it caused.
// It may read through tx but must not write the invoice row itself.
type mutation func(tx *gorm.DB, inv *invoicedomain.Invoice, now time.Time) ([]events.Event, error)

// mutate is the single write path for existing invoices: load, apply fn to a
// copy, then persist with a version check together with amendments, coupon
// usage, outbox rows and the audit entry. Events reach the bus after commit.
func (s *Service) mutate(ctx context.Context, op string, id snowflake.ID, expectedVersion int64, fn mutation) (*invoicedomain.Invoice, error) {
	if id == 0 {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}
	ctx, _ = correlation.EnsureCorrelationID(ctx)

	var (
		out     *invoicedomain.Invoice
		emitted []events.Event
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if expectedVersion != 0 && current.Version != expectedVersion {
			return invoicedomain.ErrConcurrentModification
		}

		now := s.now()
		working := current.Clone()
		evts, err := fn(tx, working, now)
		if err != nil {
			return err
		}
		if err := s.syncCouponUsage(ctx, tx, current, working); err != nil {
			return err
		}

		working.UpdatedAt = now
		if err := s.repo.UpdateVersioned(ctx, tx, working, current.Version); err != nil {
			return err
		}
		if pending := amendment.Pending(working, len(current.EditHistory)); len(pending) > 0 {
			if err := s.repo.InsertAmendments(ctx, tx, pending); err != nil {
				return err
			}
		}
		if err := s.outbox.Append(ctx, tx, now, evts...); err != nil {
			return err
		}
		if err := s.writeAudit(ctx, tx, "invoice."+op, working, auditMetadata(current, working)); err != nil {
			return err
		}

		out = working
		emitted = evts
		return nil
	})
	if err != nil {
		if errors.Is(err, invoicedomain.ErrConcurrentModification) {
			s.obsMetrics.RecordConcurrentModification(ctx, op)
		}
		return nil, err
	}

	s.bus.Publish(ctx, emitted...)
	obslogger.WithContext(ctx, s.log).Debug("invoice updated",
		zap.String("op", op),
		zap.String("invoice_id", out.ID.String()),
		zap.Int64("version", out.Version),
	)
	return out, nil
}

// syncCouponUsage keeps coupon usage counts in step with the applied coupon.
func (s *Service) syncCouponUsage(ctx context.Context, tx *gorm.DB, before, after *invoicedomain.Invoice) error {
	prevID, hadPrev := couponvalidator.AppliedCouponID(before)
	nextID, hasNext := couponvalidator.AppliedCouponID(after)
	if hadPrev == hasNext && prevID == nextID {
		return nil
	}
	if hadPrev {
		if err := s.couponRepo.ReleaseUse(ctx, tx, prevID); err != nil {
			return err
		}
	}
	if hasNext {
		err := s.couponRepo.IncrementUses(ctx, tx, nextID)
		if errors.Is(err, coupondomain.ErrUsageLimitReached) {
			return &invoicedomain.CouponRejectedError{Code: after.AppliedCoupon.Code, Reason: couponvalidator.ReasonUsageLimit}
		}
		return err
	}
	return nil
}

func (s *Service) load(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	inv, err := s.repo.FindByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	history, err := s.repo.ListAmendments(ctx, db, id)
	if err != nil {
		return nil, err
	}
	inv.EditHistory = history
	return inv, nil
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (*invoicedomain.Invoice, error) {
	if err := validation.Struct(s.validate, req); err != nil {
		return nil, err
	}
	ctx, _ = correlation.EnsureCorrelationID(ctx)
	policy := s.policy.Get()
	if err := deposit.ValidatePercent(req.DepositPercent, policy.AllowedDepositPercents); err != nil {
		return nil, err
	}

	now := s.now()
	lines, err := s.prepareLines(req.LineItems)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		blank := invoicedomain.BlankLine()
		blank.ID = s.newID()
		lines = []invoicedomain.LineItem{blank}
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = policy.DefaultCurrency
	}
	dueDate := req.DueDate
	if dueDate == nil && policy.DefaultDueDays > 0 {
		due := now.AddDate(0, 0, policy.DefaultDueDays)
		dueDate = &due
	}

	inv := &invoicedomain.Invoice{
		ID:             s.newID(),
		LineItems:      lines,
		TaxRatePercent: req.TaxRatePercent,
		DepositPercent: req.DepositPercent,
		Currency:       currency,
		Status:         invoicedomain.StatusDraft,
		DueDate:        dueDate,
		Notes:          strings.TrimSpace(req.Notes),
		Terms:          strings.TrimSpace(req.Terms),
		Tags:           normalizeTags(req.Tags),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var emitted []events.Event
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.ContactID != nil {
			contactID := *req.ContactID
			inv.ContactID = &contactID
		}
		if req.BookingID != nil {
			evts, err := s.linkBooking(ctx, tx, inv, *req.BookingID, now)
			if err != nil {
				return err
			}
			emitted = append(emitted, evts...)
		}
		if inv.ContactID != nil {
			if err := s.snapshotContact(ctx, tx, inv, *inv.ContactID); err != nil {
				return err
			}
		}
		if err := totals.Refresh(inv); err != nil {
			return err
		}

		seq, err := s.repo.NextSequence(ctx, tx, sequenceName)
		if err != nil {
			return err
		}
		number, err := format.FormatInvoiceNumber(policy.InvoiceNumberTemplate, now, seq)
		if err != nil {
			return err
		}
		inv.InvoiceNumber = number

		if err := s.repo.Insert(ctx, tx, inv); err != nil {
			if db.IsDuplicateKeyErr(err) && inv.BookingID != nil {
				return invoicedomain.ErrBookingAlreadyInvoiced
			}
			return err
		}
		if len(inv.EditHistory) > 0 {
			if err := s.repo.InsertAmendments(ctx, tx, inv.EditHistory); err != nil {
				return err
			}
		}
		if err := s.outbox.Append(ctx, tx, now, emitted...); err != nil {
			return err
		}
		return s.writeAudit(ctx, tx, "invoice.created", inv, map[string]any{
			"invoice_number": inv.InvoiceNumber,
			"total_cents":    inv.TotalCents,
		})
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, emitted...)
	obslogger.WithContext(ctx, s.log).Info("invoice created",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
	)
	return inv, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	if id == 0 {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}
	return s.load(ctx, s.db, id)
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	if err := validation.Struct(s.validate, req); err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	filter := invoicedomain.ListInvoiceFilter{
		Tag:       strings.TrimSpace(req.Tag),
		DueBefore: req.DueBefore,
	}
	if raw := strings.TrimSpace(req.Status); raw != "" {
		status, err := invoicedomain.ParseStatus(raw)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, err
		}
		filter.Status = status
	}
	if raw := strings.TrimSpace(req.ContactID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.NewValidationError("contact_id", "is not a valid id")
		}
		filter.ContactID = &id
	}
	if raw := strings.TrimSpace(req.BookingID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.NewValidationError("booking_id", "is not a valid id")
		}
		filter.BookingID = &id
	}

	pageSize := pagination.Size(int(req.PageSize))
	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	invoices, info := pagination.Page(items, pageSize, func(inv *invoicedomain.Invoice) snowflake.ID { return inv.ID })
	return invoicedomain.ListInvoiceResponse{PageInfo: info, Invoices: invoices}, nil
}

func (s *Service) ReplaceLineItems(ctx context.Context, req invoicedomain.ReplaceLineItemsRequest) (*invoicedomain.Invoice, error) {
	lines, err := s.prepareLines(req.LineItems)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "line_items_replaced", req.InvoiceID, req.ExpectedVersion, func(tx *gorm.DB, inv *invoicedomain.Invoice, now time.Time) ([]events.Event, error) {
		if err := statemachine.CheckEditable(inv.Status, statemachine.FieldLineItems); err != nil {
			return nil, err
		}
		if len(lines) == 0 {
			blank := invoicedomain.BlankLine()
			blank.ID = s.newID()
			lines = []invoicedomain.LineItem{blank}
		}
		inv.LineItems = lines
		return recompute(inv, now)
	})
}

func (s *Service) AddCatalogItem(ctx context.Context, req invoicedomain.AddCatalogItemRequest) (*invoicedomain.Invoice, error) {
	if err := validation.Struct(s.validate, req); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "catalog_item_added", req.InvoiceID, 0, func(tx *gorm.DB, inv *invoicedomain.Invoice, now time.Time) ([]events.Event, error) {
		if err := statemachine.CheckEditable(inv.Status, statemachine.FieldLineItems); err != nil {
			return nil, err
		}
		item, err := s.catalogRepo.FindByID(ctx, tx, req.CatalogItemID)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, invoicedomain.ErrCatalogItemNotFound
		}
		if !item.Active {
			return nil, invoicedomain.ErrCatalogItemInactive
		}

		var line invoicedomain.LineItem
		switch item.Kind {
		case catalogdomain.KindPackage:
			line = invoicedomain.PackageLine(item.ID, item.Name, req.Quantity, item.PriceCents)
		default:
			line = invoicedomain.ServiceLine(item.ID, item.Name, req.Quantity, item.PriceCents)
		}
		line = line.WithMemo(req.Memo)
		line.ID = s.newID()

		// A fresh invoice carries one blank placeholder line; replace it.
		items := inv.Items()
		if len(items) == 1 && items[0].IsBlank() {
			items = nil
		}
		inv.LineItems = append(items, line)
		return recompute(inv, now)
	})
}

func (s *Service) ApplyCoupon(ctx context.Context, req invoicedomain.ApplyCouponRequest) (*invoicedomain.Invoice, error) {
	if err := validation.Struct(s.validate, req); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "coupon_applied", req.InvoiceID, req.ExpectedVersion, func(tx *gorm.DB, inv *invoicedomain.Invoice, now time.Time) ([]events.Event, error) {
		if err := statemachine.CheckEditable(inv.Status, statemachine.FieldCoupon); err != nil {
			return nil, err
		}
		coupon, err := s.couponRepo.FindByCode(ctx, tx, req.Code)
		if err != nil {
			return nil, err
		}
		if coupon == nil {
			return nil, &invoicedomain.CouponRejectedError{
				Code:   coupondomain.NormalizeCode(req.Code),
				Reason: couponvalidator.ReasonNotFound,
			}
		}
		if _, err := couponvalidator.Apply(inv, coupon, now); err != nil {
			return nil, err
		}
		if err := totals.Refresh(inv); err != nil {
			return nil, err
		}
		return statemachine.Reconcile(inv, now)
	})
}

func (s *Service) RemoveCoupon(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return s.mutate(ctx, "coupon_removed", id, 0, func(tx *gorm.DB, inv *invoicedomain.Invoice, now time.Time) ([]events.Event, error) {
		if err := statemachine.CheckEditable(inv.Status, statemachine.FieldCoupon); err != nil {
			return nil, err
		}
		if inv.AppliedCoupon == nil {
			return nil, nil
		}
		inv.AppliedCoupon = nil
		if err := totals.Refresh(inv); err != nil {
			return nil, err
		}
		return statemachine.Reconcile(inv, now)
	})
}

func (s *Service) SetTaxRate(ctx context.Context, req invoicedomain.SetTaxRateRequest) (*invoicedomain.Invoice, error) {
	return s.mutate(ctx, "tax_rate_changed", req.InvoiceID, req.ExpectedVersion, func(tx *gorm.DB, inv *invoicedomain.Invoice, now time.Time) ([]events.Event, error) {
		if err := statemachine.CheckEditable(inv.Status, statemachine.FieldTaxRate); err != nil {
			return nil, err
		}
		inv.TaxRatePercent = req.TaxRatePercent
		if err := totals.Refresh(inv); err != nil {
			return nil, err
		}
		return statemachine.Reconcile(inv, now)
	})
}

func (s *Service) SetDeposit(ctx context.Context, req invoicedomain.SetDepositRequest) (*invoicedomain.Invoice, error) {
	if err := deposit.ValidatePercent(req.Percent, s.policy.Get().AllowedDepositPercents); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "deposit_changed", req.InvoiceID, req.ExpectedVersion, func(tx *gorm.DB, inv *invoicedomain.Invoice, now time.Time) ([]events.Event, error) {
		if err := statemachine.CheckEditable(inv.Status, statemachine.FieldDeposit); err != nil {
			return nil, err
		}
		if err := deposit.CanChange(inv); err != nil {
			return nil, err
		}
		inv.DepositPercent = req.Percent
		return nil, totals.Refresh(inv)
	})
}

func (s *Service) UpdateDetails(ctx context.Context, req invoicedomain.UpdateDetailsRequest) (*invoicedomain.Invoice, error) {
	if err := validation.Struct(s.validate, req); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "details_updated", req.InvoiceID, req.ExpectedVersion, func(tx *gorm.DB, inv *invoicedomain.Invoice, now time.Time) ([]events.Event, error) {
		var out []events.Event
		if req.ContactID != nil {
			if err := statemachine.CheckEditable(inv.Status, statemachine.FieldContact); err != nil {
				return nil, err
			}
			if inv.BookingID != nil && (inv.ContactID == nil || *inv.ContactID != *req.ContactID) {
				return nil, invoicedomain.NewValidationError("contact_id", "unlink the booking before changing the contact")
			}
			if err := s.snapshotContact(ctx, tx, inv, *req.ContactID); err != nil {
				return nil, err
			}
		}
		if req.Currency != nil {
			if err := statemachine.CheckEditable(inv.Status, statemachine.FieldCurrency); err != nil {
				return nil, err
			}
			inv.Currency = strings.ToUpper(strings.TrimSpace(*req.Currency))
		}
		if req.DueDate != nil {
			if err := statemachine.CheckEditable(inv.Status, statemachine.FieldDueDate); err != nil {
				return nil, err
			}
			due := *req.DueDate
			inv.DueDate = &due
		}
		if req.Notes != nil {
			if err := statemachine.CheckEditable(inv.Status, statemachine.FieldNotes); err != nil {
				return nil, err
			}
			evts, err := s.editText(inv, "Notes", &inv.Notes, *req.Notes, now)
			if err != nil {
				return nil, err
			}
			out = append(out, evts...)
		}
		if req.Terms != nil {
			if err := statemachine.CheckEditable(inv.Status, statemachine.FieldTerms); err != nil {
				return nil, err
			}
			evts, err := s.editText(inv, "Terms", &inv.Terms, *req.Terms, now)
			if err != nil {
				return nil, err
			}
			out = append(out, evts...)
		}
		if req.Tags != nil {
			if err := statemachine.CheckEditable(inv.Status, statemachine.FieldTags); err != nil {
				return nil, err
			}
			inv.Tags = normalizeTags(*req.Tags)
		}
		return out, nil
	})
}

func (s *Service) Send(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return s.mutate(ctx, "sent", id, 0, func(tx *gorm.DB, inv *invoicedomain.Invoice, now time.Time) ([]events.Event, error) {
		return statemachine.Send(inv, now)
	})
}

func (s *Service) MarkViewed(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return s.mutate(ctx, "viewed", id, 0, func(tx *gorm.DB, inv *invoicedomain.Invoice, now time.Time) ([]events.Event, error) {
		return statemachine.MarkViewed(inv, now)
	})
}

func (s *Service) MarkOverdue(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return s.mutate(ctx, "overdue", id, 0, func(tx *gorm.DB, inv *invoicedomain.Invoice, now time.Time) ([]events.Event, error) {
		return statemachine.MarkOverdue(inv, now)
	})
}

// SweepOverdue marks past-due invoices overdue one at a time. Invoices that
// changed underneath the sweep are skipped and picked up on the next run.
func (s *Service) SweepOverdue(ctx context.Context, limit int) (invoicedomain.SweepResult, error) {
	var result invoicedomain.SweepResult
	ids, err := s.repo.ListOverdueCandidates(ctx, s.db, s.now(), limit)
	if err != nil {
		return result, err
	}
	result.Scanned = len(ids)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		_, err := s.MarkOverdue(ctx, id)
		switch {
		case err == nil:
			result.Marked++
		case errors.Is(err, invoicedomain.ErrConcurrentModification),
			errors.Is(err, invoicedomain.ErrIllegalTransition):
			result.Skipped++
			result.SkipErrs = append(result.SkipErrs, err)
			s.log.Info("overdue sweep skipped invoice", zap.String("invoice_id", id.String()), zap.Error(err))
		default:
			return result, err
		}
	}
	return result, nil
}

func (s *Service) Void(ctx context.Context, id snowflake.ID, reason string) (*invoicedomain.Invoice, error) {
	return s.mutate(ctx, "voided", id, 0, func(tx *gorm.DB, inv *invoicedomain.Invoice, now time.Time) ([]events.Event, error) {
		return statemachine.Void(inv, reason, now)
	})
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	if id == 0 {
		return invoicedomain.ErrInvalidInvoiceID
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := statemachine.CanDelete(inv); err != nil {
			return err
		}
		if couponID, ok := couponvalidator.AppliedCouponID(inv); ok {
			if err := s.couponRepo.ReleaseUse(ctx, tx, couponID); err != nil {
				return err
			}
		}
		if err := s.repo.Delete(ctx, tx, id, inv.Version); err != nil {
			return err
		}
		return s.writeAudit(ctx, tx, "invoice.deleted", inv, map[string]any{
			"invoice_number": inv.InvoiceNumber,
		})
	})
}

func (s *Service) LinkBooking(ctx context.Context, id, bookingID snowflake.ID) (*invoicedomain.Invoice, error) {
	inv, err := s.mutate(ctx, "booking_linked", id, 0, func(tx *gorm.DB, inv *invoicedomain.Invoice, now time.Time) ([]events.Event, error) {
		if err := statemachine.CheckEditable(inv.Status, statemachine.FieldBooking); err != nil {
			return nil, err
		}
		hadContact := inv.ContactID != nil
		evts, err := s.linkBooking(ctx, tx, inv, bookingID, now)
		if err != nil {
			return nil, err
		}
		if !hadContact && inv.ContactID != nil {
			if err := s.snapshotContact(ctx, tx, inv, *inv.ContactID); err != nil {
				return nil, err
			}
		}
		return evts, nil
	})
	if db.IsDuplicateKeyErr(err) {
		return nil, invoicedomain.ErrBookingAlreadyInvoiced
	}
	return inv, err
}

func (s *Service) UnlinkBooking(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return s.mutate(ctx, "booking_unlinked", id, 0, func(tx *gorm.DB, inv *invoicedomain.Invoice, now time.Time) ([]events.Event, error) {
		if err := statemachine.CheckEditable(inv.Status, statemachine.FieldBooking); err != nil {
			return nil, err
		}
		return linkage.Unlink(inv, s.newID, now)
	})
}

func (s *Service) Amend(ctx context.Context, id snowflake.ID, description string) (*invoicedomain.Invoice, error) {
	return s.mutate(ctx, "amended", id, 0, func(tx *gorm.DB, inv *invoicedomain.Invoice, now time.Time) ([]events.Event, error) {
		if err := statemachine.CheckEditable(inv.Status, statemachine.FieldAmendment); err != nil {
			return nil, err
		}
		evt, err := amendment.Record(inv, s.newID(), description, now)
		if err != nil {
			return nil, err
		}
		return []events.Event{evt}, nil
	})
}

func (s *Service) ExportPDF(ctx context.Context, id snowflake.ID) ([]byte, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	payments, err := s.paymentRepo.ListPaymentsByInvoice(ctx, s.db, inv.ID)
	if err != nil {
		return nil, err
	}
	doc := render.Document{Invoice: inv}
	for _, p := range payments {
		doc.Payments = append(doc.Payments, render.PaymentLine{
			PaidAt:      p.CreatedAt,
			Channel:     string(p.Channel),
			Method:      p.Method,
			CardLast4:   p.CardLast4,
			AmountCents: p.AmountCents,
			IsDeposit:   p.IsDeposit,
		})
	}
	out, err := s.renderer.Render(doc)
	if err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", inv.InvoiceNumber, err)
	}
	return out, nil
}

// linkBooking resolves the booking and its current holder, then links it to inv.
func (s *Service) linkBooking(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice, bookingID snowflake.ID, now time.Time) ([]events.Event, error) {
	booking, err := s.bookingRepo.FindByID(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, invoicedomain.ErrBookingNotFound
	}
	var holder *snowflake.ID
	existing, err := s.repo.FindByBookingID(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		holder = &existing.ID
	}
	return linkage.Link(inv, booking, holder, s.newID, now)
}

func (s *Service) snapshotContact(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice, contactID snowflake.ID) error {
	contact, err := s.contactRepo.FindByID(ctx, tx, contactID)
	if err != nil {
		return err
	}
	if contact == nil {
		return invoicedomain.ErrContactNotFound
	}
	inv.ContactID = &contact.ID
	inv.ContactName = contact.Name
	inv.ContactEmail = contact.Email
	return nil
}

// editText updates a free text field. Changes on a paid invoice are also
// written to the amendment log.
func (s *Service) editText(inv *invoicedomain.Invoice, label string, field *string, value string, now time.Time) ([]events.Event, error) {
	value = strings.TrimSpace(value)
	if value == *field {
		return nil, nil
	}
	*field = value
	if !inv.IsPaid() {
		return nil, nil
	}
	evt, err := amendment.Record(inv, s.newID(), label+" updated", now)
	if err != nil {
		return nil, err
	}
	return []events.Event{evt}, nil
}

// prepareLines normalizes caller lines, assigns ids and validates them.
func (s *Service) prepareLines(items []invoicedomain.LineItem) ([]invoicedomain.LineItem, error) {
	out := make([]invoicedomain.LineItem, 0, len(items))
	for _, item := range items {
		item = item.Normalize()
		if item.ID == 0 {
			item.ID = s.newID()
		}
		out = append(out, item)
	}
	if err := invoicedomain.ValidateLineItems(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) writeAudit(ctx context.Context, tx *gorm.DB, action string, inv *invoicedomain.Invoice, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	if err := s.auditSvc.Record(ctx, tx, auditdomain.Entry{
		Action:         action,
		InvoiceID:      inv.ID,
		InvoiceVersion: inv.Version,
		Metadata:       metadata,
	}); err != nil {
		return fmt.Errorf("audit %s: %w", action, err)
	}
	return nil
}

func auditMetadata(before, after *invoicedomain.Invoice) map[string]any {
	metadata := map[string]any{
		"invoice_number": after.InvoiceNumber,
		"version":        after.Version,
		"total_cents":    after.TotalCents,
		"balance_cents":  after.BalanceDueCents,
	}
	if before.Status != after.Status {
		metadata["from_status"] = before.Status.String()
		metadata["to_status"] = after.Status.String()
	}
	if before.TotalCents != after.TotalCents {
		metadata["previous_total_cents"] = before.TotalCents
	}
	return metadata
}

// recompute runs after a line item change: the coupon is re-checked against the
// new lines, totals are refreshed and a fully covered invoice settles.
func recompute(inv *invoicedomain.Invoice, now time.Time) ([]events.Event, error) {
	var out []events.Event
	if evt, invalidated := couponvalidator.Reevaluate(inv); invalidated {
		out = append(out, evt)
	}
	if err := totals.Refresh(inv); err != nil {
		return nil, err
	}
	settled, err := statemachine.Reconcile(inv, now)
	if err != nil {
		return nil, err
	}
	return append(out, settled...), nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
