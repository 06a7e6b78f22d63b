package amendment

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicecore/internal/events"
	"github.com/smallbiznis/invoicecore/internal/invoice/domain"
)

const maxDescriptionLength = 2000

// Record appends an entry to the invoice's edit history. Entries are never
// edited or removed once written.
func Record(inv *domain.Invoice, id snowflake.ID, description string, now time.Time) (events.Event, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, domain.NewValidationError("description", "is required")
	}
	if len(description) > maxDescriptionLength {
		return nil, domain.NewValidationError("description", "is too long")
	}
	inv.EditHistory = append(inv.EditHistory, domain.Amendment{
		ID:          id,
		InvoiceID:   inv.ID,
		Description: description,
		EditedAt:    now,
	})
	return events.AmendmentRecorded{InvoiceID: inv.ID, Description: description}, nil
}

// Pending returns entries added after the first persisted count.
func Pending(inv *domain.Invoice, persisted int) []domain.Amendment {
	if persisted >= len(inv.EditHistory) {
		return nil
	}
	return append([]domain.Amendment(nil), inv.EditHistory[persisted:]...)
}
