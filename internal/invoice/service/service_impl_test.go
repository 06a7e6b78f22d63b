package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/invoicecore/internal/audit/domain"
	auditrepository "github.com/smallbiznis/invoicecore/internal/audit/repository"
	auditservice "github.com/smallbiznis/invoicecore/internal/audit/service"
	bookingdomain "github.com/smallbiznis/invoicecore/internal/booking/domain"
	bookingrepository "github.com/smallbiznis/invoicecore/internal/booking/repository"
	catalogdomain "github.com/smallbiznis/invoicecore/internal/catalog/domain"
	catalogrepository "github.com/smallbiznis/invoicecore/internal/catalog/repository"
	"github.com/smallbiznis/invoicecore/internal/clock"
	"github.com/smallbiznis/invoicecore/internal/config"
	contactdomain "github.com/smallbiznis/invoicecore/internal/contact/domain"
	contactrepository "github.com/smallbiznis/invoicecore/internal/contact/repository"
	coupondomain "github.com/smallbiznis/invoicecore/internal/coupon/domain"
	couponrepository "github.com/smallbiznis/invoicecore/internal/coupon/repository"
	couponvalidator "github.com/smallbiznis/invoicecore/internal/coupon/validator"
	"github.com/smallbiznis/invoicecore/internal/events"
	invoicedomain "github.com/smallbiznis/invoicecore/internal/invoice/domain"
	"github.com/smallbiznis/invoicecore/internal/invoice/render"
	"github.com/smallbiznis/invoicecore/internal/invoice/repository"
	paymentrepository "github.com/smallbiznis/invoicecore/internal/payment/repository"
	"github.com/smallbiznis/invoicecore/internal/testutil"
	"github.com/smallbiznis/invoicecore/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var start = time.Date(2026, 3, 7, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc      invoicedomain.Service
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
	recorder *events.Recorder

	contactID snowflake.ID
	haircutID snowflake.ID
	bundleID  snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.OpenDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(start)
	policy, err := config.NewStaticPolicyHolder(config.DefaultPolicy())
	require.NoError(t, err)

	bus := events.NewBus(zap.NewNop())
	recorder := &events.Recorder{}
	bus.Subscribe(recorder.Handle)

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepository.Provide(),
		Clock: clk,
	})

	svc := NewService(ServiceParam{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		Policy:      policy,
		Validate:    validation.New(),
		Repo:        repository.Provide(),
		ContactRepo: contactrepository.Provide(),
		BookingRepo: bookingrepository.Provide(),
		CatalogRepo: catalogrepository.Provide(),
		CouponRepo:  couponrepository.Provide(),
		PaymentRepo: paymentrepository.Provide(),
		Renderer:    render.NewRenderer(),
		Outbox:      events.NewOutbox(node),
		Bus:         bus,
		AuditSvc:    auditSvc,
	})

	f := &fixture{svc: svc, db: db, node: node, clock: clk, recorder: recorder}
	ctx := context.Background()

	f.contactID = node.Generate()
	require.NoError(t, contactrepository.Provide().Insert(ctx, db, &contactdomain.Contact{
		ID: f.contactID, Name: "Dana Whitfield", Email: "dana@example.com", CreatedAt: start, UpdatedAt: start,
	}))
	f.haircutID = node.Generate()
	require.NoError(t, catalogrepository.Provide().Insert(ctx, db, &catalogdomain.Item{
		ID: f.haircutID, Kind: catalogdomain.KindService, Name: "Haircut", PriceCents: 5000, Active: true, CreatedAt: start, UpdatedAt: start,
	}))
	f.bundleID = node.Generate()
	require.NoError(t, catalogrepository.Provide().Insert(ctx, db, &catalogdomain.Item{
		ID: f.bundleID, Kind: catalogdomain.KindPackage, Name: "Spa Bundle", PriceCents: 12000, Active: true, CreatedAt: start, UpdatedAt: start,
	}))
	return f
}

func (f *fixture) seedCoupon(t *testing.T, coupon coupondomain.Coupon) coupondomain.Coupon {
	t.Helper()
	coupon.ID = f.node.Generate()
	coupon.Active = true
	coupon.CreatedAt = start
	coupon.UpdatedAt = start
	require.NoError(t, couponrepository.Provide().Insert(context.Background(), f.db, &coupon))
	return coupon
}

func (f *fixture) seedBooking(t *testing.T) bookingdomain.Booking {
	t.Helper()
	booking := bookingdomain.Booking{
		ID:          f.node.Generate(),
		ContactID:   f.contactID,
		ScheduledAt: start.Add(48 * time.Hour),
		Services:    []bookingdomain.BookedItem{{ID: f.haircutID, Name: "Haircut", PriceCents: 5000}},
		Packages:    []bookingdomain.BookedItem{{ID: f.bundleID, Name: "Spa Bundle", PriceCents: 12000}},
		CreatedAt:   start,
		UpdatedAt:   start,
	}
	require.NoError(t, bookingrepository.Provide().Insert(context.Background(), f.db, &booking))
	return booking
}

func (f *fixture) createDraft(t *testing.T, lines ...invoicedomain.LineItem) *invoicedomain.Invoice {
	t.Helper()
	contactID := f.contactID
	inv, err := f.svc.Create(context.Background(), invoicedomain.CreateInvoiceRequest{
		ContactID:      &contactID,
		LineItems:      lines,
		TaxRatePercent: decimal.NewFromInt(8),
	})
	require.NoError(t, err)
	return inv
}

func (f *fixture) couponUses(t *testing.T, id snowflake.ID) int64 {
	t.Helper()
	coupon, err := couponrepository.Provide().FindByID(context.Background(), f.db, id)
	require.NoError(t, err)
	require.NotNil(t, coupon)
	return coupon.CurrentUses
}

// markPaid settles an invoice directly in storage so paid-state rules can be exercised.
func (f *fixture) markPaid(t *testing.T, id snowflake.ID) {
	t.Helper()
	require.NoError(t, f.db.Exec(
		`UPDATE invoices SET status = ?, amount_paid_cents = total_cents, balance_due_cents = 0, paid_at = ?, version = version + 1 WHERE id = ?`,
		invoicedomain.StatusPaid, start, id,
	).Error)
}

func TestCreateNumbersAndTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.createDraft(t, invoicedomain.CustomLine("Consultation", 2, 5000))
	assert.Equal(t, "INV-00001", first.InvoiceNumber)
	assert.Equal(t, invoicedomain.StatusDraft, first.Status)
	assert.Equal(t, int64(10000), first.SubtotalCents)
	assert.Equal(t, int64(800), first.TaxCents)
	assert.Equal(t, int64(10800), first.TotalCents)
	assert.Equal(t, int64(10800), first.BalanceDueCents)
	assert.Equal(t, "USD", first.Currency)
	assert.Equal(t, "Dana Whitfield", first.ContactName)
	require.NotNil(t, first.DueDate)
	assert.Equal(t, start.AddDate(0, 0, 30), first.DueDate.UTC())
	assert.Equal(t, int64(1), first.Version)

	second := f.createDraft(t)
	assert.Equal(t, "INV-00002", second.InvoiceNumber)
	require.Len(t, second.LineItems, 1)
	assert.True(t, second.LineItems[0].IsBlank())

	stored, err := f.svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.TotalCents, stored.TotalCents)
	assert.True(t, decimal.NewFromInt(8).Equal(stored.TaxRatePercent))

	var audits []auditdomain.AuditLog
	require.NoError(t, f.db.Where("action = ?", "invoice.created").Find(&audits).Error)
	assert.Len(t, audits, 2)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	badDeposit := 15
	_, err := f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{DepositPercent: &badDeposit})
	assert.True(t, errors.Is(err, invoicedomain.ErrValidation))

	_, err = f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		LineItems: []invoicedomain.LineItem{invoicedomain.CustomLine("Bad", 0, 100)},
	})
	var verr *invoicedomain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "line_items[0].quantity", verr.Field)

	missing := f.node.Generate()
	_, err = f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{ContactID: &missing})
	assert.True(t, errors.Is(err, invoicedomain.ErrContactNotFound))

	_, err = f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{Currency: "DOLLARS"})
	assert.True(t, errors.Is(err, invoicedomain.ErrValidation))
}

func TestCreateFromBookingIsOneToOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := f.seedBooking(t)

	inv, err := f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{BookingID: &booking.ID})
	require.NoError(t, err)
	require.NotNil(t, inv.BookingID)
	assert.Equal(t, booking.ID, *inv.BookingID)
	assert.Equal(t, f.contactID, *inv.ContactID)
	assert.Equal(t, "Dana Whitfield", inv.ContactName)
	require.Len(t, inv.LineItems, 2)
	assert.Equal(t, "Booking #"+booking.ShortID(), inv.LineItems[0].Memo)
	assert.Equal(t, int64(17000), inv.TotalCents)

	_, err = f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{BookingID: &booking.ID})
	assert.True(t, errors.Is(err, invoicedomain.ErrBookingAlreadyInvoiced))

	other := f.createDraft(t)
	_, err = f.svc.LinkBooking(ctx, other.ID, booking.ID)
	assert.True(t, errors.Is(err, invoicedomain.ErrBookingAlreadyInvoiced))

	unlinked, err := f.svc.UnlinkBooking(ctx, inv.ID)
	require.NoError(t, err)
	assert.Nil(t, unlinked.BookingID)
	require.Len(t, unlinked.LineItems, 1)
	assert.True(t, unlinked.LineItems[0].IsBlank())

	relinked, err := f.svc.LinkBooking(ctx, other.ID, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.ID, *relinked.BookingID)
}

func TestCouponLifecycleTracksUsage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	maxUses := int64(1)
	coupon := f.seedCoupon(t, coupondomain.Coupon{
		Code:                 "BUNDLE20",
		DiscountType:         invoicedomain.DiscountPercent,
		DiscountValue:        20,
		ApplicablePackageIDs: []snowflake.ID{f.bundleID},
		MaxUses:              &maxUses,
	})

	inv := f.createDraft(t)
	inv, err := f.svc.AddCatalogItem(ctx, invoicedomain.AddCatalogItemRequest{InvoiceID: inv.ID, CatalogItemID: f.bundleID, Quantity: 1})
	require.NoError(t, err)
	require.Len(t, inv.LineItems, 1)
	inv, err = f.svc.AddCatalogItem(ctx, invoicedomain.AddCatalogItemRequest{InvoiceID: inv.ID, CatalogItemID: f.haircutID, Quantity: 1})
	require.NoError(t, err)

	inv, err = f.svc.ApplyCoupon(ctx, invoicedomain.ApplyCouponRequest{InvoiceID: inv.ID, Code: " bundle20 "})
	require.NoError(t, err)
	require.NotNil(t, inv.AppliedCoupon)
	assert.Equal(t, int64(2400), inv.CouponDiscountCents)
	assert.Equal(t, int64(1), f.couponUses(t, coupon.ID))

	other := f.createDraft(t, invoicedomain.ServiceLine(f.bundleID, "x", 1, 100))
	_, err = f.svc.ApplyCoupon(ctx, invoicedomain.ApplyCouponRequest{InvoiceID: other.ID, Code: "NOPE"})
	var rejected *invoicedomain.CouponRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, couponvalidator.ReasonNotFound, rejected.Reason)

	f.recorder.Reset()
	inv, err = f.svc.ReplaceLineItems(ctx, invoicedomain.ReplaceLineItemsRequest{
		InvoiceID:       inv.ID,
		LineItems:       []invoicedomain.LineItem{invoicedomain.ServiceLine(f.haircutID, "Haircut", 1, 5000)},
		ExpectedVersion: inv.Version,
	})
	require.NoError(t, err)
	assert.Nil(t, inv.AppliedCoupon)
	assert.Zero(t, inv.CouponDiscountCents)
	assert.Equal(t, []string{events.TopicCouponInvalidated}, f.recorder.Topics())
	assert.Zero(t, f.couponUses(t, coupon.ID))

	var outbox int64
	require.NoError(t, f.db.Model(&events.OutboxEvent{}).Where("topic = ?", events.TopicCouponInvalidated).Count(&outbox).Error)
	assert.Equal(t, int64(1), outbox)
}

func TestStaleVersionIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.createDraft(t, invoicedomain.CustomLine("Work", 1, 1000))

	_, err := f.svc.SetTaxRate(ctx, invoicedomain.SetTaxRateRequest{InvoiceID: inv.ID, TaxRatePercent: decimal.NewFromInt(5), ExpectedVersion: inv.Version})
	require.NoError(t, err)

	_, err = f.svc.SetTaxRate(ctx, invoicedomain.SetTaxRateRequest{InvoiceID: inv.ID, TaxRatePercent: decimal.NewFromInt(7), ExpectedVersion: inv.Version})
	assert.True(t, errors.Is(err, invoicedomain.ErrConcurrentModification))

	current, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), current.Version)
	assert.Equal(t, int64(50), current.TaxCents)
}

func TestLifecycleSendViewSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	noContact, err := f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		LineItems: []invoicedomain.LineItem{invoicedomain.CustomLine("Work", 1, 1000)},
	})
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, noContact.ID)
	assert.True(t, errors.Is(err, invoicedomain.ErrIllegalTransition))

	inv := f.createDraft(t, invoicedomain.CustomLine("Work", 1, 1000))
	_, err = f.svc.MarkViewed(ctx, inv.ID)
	assert.True(t, errors.Is(err, invoicedomain.ErrIllegalTransition))

	inv, err = f.svc.Send(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusSent, inv.Status)
	inv, err = f.svc.MarkViewed(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusViewed, inv.Status)

	f.clock.Advance(31 * 24 * time.Hour)
	result, err := f.svc.SweepOverdue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 1, result.Marked)

	inv, err = f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusOverdue, inv.Status)
	require.NotNil(t, inv.OverdueAt)

	result, err = f.svc.SweepOverdue(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, result.Scanned)

	listed, err := f.svc.List(ctx, invoicedomain.ListInvoiceRequest{Status: "overdue"})
	require.NoError(t, err)
	require.Len(t, listed.Invoices, 1)
	assert.Equal(t, inv.ID, listed.Invoices[0].ID)
}

func TestVoidAndDeleteRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft := f.createDraft(t, invoicedomain.CustomLine("Work", 1, 1000))
	_, err := f.svc.Void(ctx, draft.ID, "mistake")
	assert.True(t, errors.Is(err, invoicedomain.ErrIllegalTransition))
	require.NoError(t, f.svc.Delete(ctx, draft.ID))
	_, err = f.svc.Get(ctx, draft.ID)
	assert.True(t, errors.Is(err, invoicedomain.ErrInvoiceNotFound))

	sent := f.createDraft(t, invoicedomain.CustomLine("Work", 1, 1000))
	_, err = f.svc.Send(ctx, sent.ID)
	require.NoError(t, err)
	assert.True(t, errors.Is(f.svc.Delete(ctx, sent.ID), invoicedomain.ErrDeleteRequiresDraft))

	voided, err := f.svc.Void(ctx, sent.ID, "  customer cancelled ")
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusVoid, voided.Status)
	assert.Equal(t, "customer cancelled", voided.VoidReason)

	_, err = f.svc.ReplaceLineItems(ctx, invoicedomain.ReplaceLineItemsRequest{InvoiceID: sent.ID})
	assert.True(t, errors.Is(err, invoicedomain.ErrFieldReadOnly))

	tags := []string{"archived", "archived", " "}
	voided, err = f.svc.UpdateDetails(ctx, invoicedomain.UpdateDetailsRequest{InvoiceID: sent.ID, Tags: &tags})
	require.NoError(t, err)
	assert.Equal(t, []string{"archived"}, []string(voided.Tags))
}

func TestPaidInvoiceRecordsAmendments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv := f.createDraft(t, invoicedomain.CustomLine("Work", 1, 1000))
	_, err := f.svc.Amend(ctx, inv.ID, "too early")
	assert.True(t, errors.Is(err, invoicedomain.ErrAmendmentNotAllowed))

	_, err = f.svc.Send(ctx, inv.ID)
	require.NoError(t, err)
	f.markPaid(t, inv.ID)

	notes := "Paid in full, thank you"
	inv, err = f.svc.UpdateDetails(ctx, invoicedomain.UpdateDetailsRequest{InvoiceID: inv.ID, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, notes, inv.Notes)

	_, err = f.svc.Amend(ctx, inv.ID, "Corrected PO number")
	require.NoError(t, err)

	_, err = f.svc.SetTaxRate(ctx, invoicedomain.SetTaxRateRequest{InvoiceID: inv.ID, TaxRatePercent: decimal.NewFromInt(1)})
	assert.True(t, errors.Is(err, invoicedomain.ErrFieldReadOnly))

	stored, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, stored.EditHistory, 2)
	assert.Equal(t, "Notes updated", stored.EditHistory[0].Description)
	assert.Equal(t, "Corrected PO number", stored.EditHistory[1].Description)
	assert.Contains(t, f.recorder.Topics(), events.TopicAmendmentRecorded)
}

func TestDepositConfiguration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.createDraft(t, invoicedomain.CustomLine("Event", 1, 10000))

	pct := 25
	inv, err := f.svc.SetDeposit(ctx, invoicedomain.SetDepositRequest{InvoiceID: inv.ID, Percent: &pct})
	require.NoError(t, err)
	assert.Equal(t, int64(2700), inv.DepositAmountCents)

	bad := 33
	_, err = f.svc.SetDeposit(ctx, invoicedomain.SetDepositRequest{InvoiceID: inv.ID, Percent: &bad})
	assert.True(t, errors.Is(err, invoicedomain.ErrValidation))

	inv, err = f.svc.SetDeposit(ctx, invoicedomain.SetDepositRequest{InvoiceID: inv.ID})
	require.NoError(t, err)
	assert.Nil(t, inv.DepositPercent)
	assert.Zero(t, inv.DepositAmountCents)
}

func TestExportPDF(t *testing.T) {
	f := newFixture(t)
	inv := f.createDraft(t, invoicedomain.CustomLine("Work", 1, 1000))

	out, err := f.svc.ExportPDF(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestAppliedCouponDiscountStaysFrozen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	maxUses := int64(1)
	coupon := f.seedCoupon(t, coupondomain.Coupon{
		Code:                 "CUT10",
		DiscountType:         invoicedomain.DiscountPercent,
		DiscountValue:        10,
		ApplicableServiceIDs: []snowflake.ID{f.haircutID},
		MaxUses:              &maxUses,
	})

	inv := f.createDraft(t, invoicedomain.ServiceLine(f.haircutID, "Haircut", 2, 5000))
	inv, err := f.svc.ApplyCoupon(ctx, invoicedomain.ApplyCouponRequest{InvoiceID: inv.ID, Code: "CUT10"})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), inv.CouponDiscountCents)
	assert.Equal(t, int64(1), f.couponUses(t, coupon.ID))

	// Re-applying the held coupon does not hit its usage limit.
	inv, err = f.svc.ApplyCoupon(ctx, invoicedomain.ApplyCouponRequest{InvoiceID: inv.ID, Code: "cut10"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.couponUses(t, coupon.ID))

	f.recorder.Reset()
	inv, err = f.svc.ReplaceLineItems(ctx, invoicedomain.ReplaceLineItemsRequest{
		InvoiceID: inv.ID,
		LineItems: []invoicedomain.LineItem{
			invoicedomain.ServiceLine(f.haircutID, "Haircut", 2, 5000),
			invoicedomain.ServiceLine(f.haircutID, "Haircut", 6, 5000),
		},
		ExpectedVersion: inv.Version,
	})
	require.NoError(t, err)
	require.NotNil(t, inv.AppliedCoupon)
	assert.Equal(t, int64(1000), inv.CouponDiscountCents)
	assert.Equal(t, int64(39000), inv.SubtotalCents-inv.CouponDiscountCents)
	assert.NotContains(t, f.recorder.Topics(), events.TopicCouponInvalidated)
}
