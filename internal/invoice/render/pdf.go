package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	invoicedomain "github.com/smallbiznis/invoicecore/internal/invoice/domain"
)

const dateLayout = "Jan 2, 2006"

// PaymentLine is one settled payment shown on the document.
type PaymentLine struct {
	PaidAt      time.Time
	Channel     string
	Method      string
	CardLast4   string
	AmountCents int64
	IsDeposit   bool
}

type Document struct {
	Invoice  *invoicedomain.Invoice
	Payments []PaymentLine
}

type Renderer interface {
	Render(doc Document) ([]byte, error)
}

type PDFRenderer struct{}

func NewRenderer() Renderer {
	return &PDFRenderer{}
}

func (r *PDFRenderer) Render(doc Document) ([]byte, error) {
	inv := doc.Invoice
	if inv == nil {
		return nil, fmt.Errorf("render: invoice is nil")
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()
	m := maroto.New(cfg)

	title := "Invoice"
	if inv.Status == invoicedomain.StatusVoid {
		title = "Invoice (VOID)"
	}
	m.AddRow(12,
		text.NewCol(8, title, props.Text{Size: 20, Style: fontstyle.Bold, Align: align.Left}),
		text.NewCol(4, strings.ToUpper(inv.Status.String()), props.Text{Size: 12, Style: fontstyle.Bold, Align: align.Right}),
	)

	m.AddRow(22,
		col.New(6).Add(
			text.New("Invoice number: "+inv.InvoiceNumber, props.Text{Top: 0}),
			text.New("Date of issue: "+formatDate(&inv.CreatedAt), props.Text{Top: 4}),
			text.New("Date due: "+formatDate(inv.DueDate), props.Text{Top: 8}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(inv.ContactName, props.Text{Top: 5}),
			text.New(inv.ContactEmail, props.Text{Top: 9}),
		),
	)

	m.AddRow(12,
		text.NewCol(12, Money(inv.BalanceDueCents, inv.Currency)+" due "+formatDate(inv.DueDate), props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   3,
		}),
	)

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, item := range inv.Items() {
		if item.IsBlank() {
			continue
		}
		description := item.Description
		if item.Memo != "" {
			description += " (" + item.Memo + ")"
		}
		m.AddRow(8,
			text.NewCol(6, description, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", item.Quantity), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, Money(item.UnitPriceCents, inv.Currency), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, Money(item.AmountCents, inv.Currency), props.Text{Size: 9, Align: align.Right}),
		)
	}

	totalRow := func(label string, cents int64, bold bool) {
		style := fontstyle.Normal
		if bold {
			style = fontstyle.Bold
		}
		m.AddRow(7,
			col.New(7),
			text.NewCol(3, label, props.Text{Size: 9, Style: style}),
			text.NewCol(2, Money(cents, inv.Currency), props.Text{Size: 9, Style: style, Align: align.Right}),
		)
	}
	totalRow("Subtotal", inv.SubtotalCents, false)
	if inv.LineDiscountCents > 0 {
		totalRow("Discounts", -inv.LineDiscountCents, false)
	}
	if inv.AppliedCoupon != nil && inv.CouponDiscountCents > 0 {
		totalRow("Coupon "+inv.AppliedCoupon.Code, -inv.CouponDiscountCents, false)
	}
	if inv.TaxCents > 0 {
		totalRow("Tax ("+inv.TaxRatePercent.String()+"%)", inv.TaxCents, false)
	}
	totalRow("Total", inv.TotalCents, true)
	if inv.DepositPercent != nil {
		label := fmt.Sprintf("Deposit (%d%%)", *inv.DepositPercent)
		if inv.DepositPaidAt != nil {
			label += " paid"
		}
		totalRow(label, inv.DepositAmountCents, false)
	}
	totalRow("Amount paid", inv.AmountPaidCents, false)
	totalRow("Amount due", inv.BalanceDueCents, true)

	if len(doc.Payments) > 0 {
		m.AddRow(10, text.NewCol(12, "Payments", props.Text{Style: fontstyle.Bold, Size: 11, Top: 3}))
		for _, p := range doc.Payments {
			m.AddRow(7,
				text.NewCol(3, p.PaidAt.Format(dateLayout), props.Text{Size: 9}),
				text.NewCol(7, paymentLabel(p), props.Text{Size: 9}),
				text.NewCol(2, Money(p.AmountCents, inv.Currency), props.Text{Size: 9, Align: align.Right}),
			)
		}
	}

	if len(inv.EditHistory) > 0 {
		m.AddRow(10, text.NewCol(12, "Amendments", props.Text{Style: fontstyle.Bold, Size: 11, Top: 3}))
		for _, a := range inv.EditHistory {
			m.AddRow(7,
				text.NewCol(3, a.EditedAt.Format(dateLayout), props.Text{Size: 9}),
				text.NewCol(9, a.Description, props.Text{Size: 9}),
			)
		}
	}

	if inv.Status == invoicedomain.StatusVoid && inv.VoidReason != "" {
		m.AddRow(10, text.NewCol(12, "Voided: "+inv.VoidReason, props.Text{Size: 9, Style: fontstyle.Italic, Top: 3}))
	}
	if inv.Notes != "" {
		m.AddRow(14, col.New(12).Add(
			text.New("Notes", props.Text{Style: fontstyle.Bold, Size: 9, Top: 3}),
			text.New(inv.Notes, props.Text{Size: 9, Top: 8}),
		))
	}
	if inv.Terms != "" {
		m.AddRow(14, col.New(12).Add(
			text.New("Terms", props.Text{Style: fontstyle.Bold, Size: 9, Top: 3}),
			text.New(inv.Terms, props.Text{Size: 9, Top: 8}),
		))
	}

	out, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return out.GetBytes(), nil
}

func paymentLabel(p PaymentLine) string {
	label := strings.ReplaceAll(p.Channel, "_", " ")
	if p.Method != "" {
		label += " (" + strings.ReplaceAll(p.Method, "_", " ") + ")"
	}
	if p.CardLast4 != "" {
		label += " ending " + p.CardLast4
	}
	if p.IsDeposit {
		label += ", deposit"
	}
	return label
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format(dateLayout)
}

// Money formats cents as a currency amount, e.g. "$108.00" or "-$5.00".
func Money(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	symbol := "$"
	switch strings.ToUpper(currency) {
	case "", "USD", "CAD", "AUD":
	case "EUR":
		symbol = "€"
	case "GBP":
		symbol = "£"
	default:
		symbol = strings.ToUpper(currency) + " "
	}
	return fmt.Sprintf("%s%s%d.%02d", sign, symbol, cents/100, cents%100)
}
