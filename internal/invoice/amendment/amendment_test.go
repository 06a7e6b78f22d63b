package amendment

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/smallbiznis/invoicecore/internal/events"
	"github.com/smallbiznis/invoicecore/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAppends(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	inv := &domain.Invoice{ID: 8, Status: domain.StatusPaid}

	evt, err := Record(inv, 1, "  Corrected billing address  ", now)
	require.NoError(t, err)
	assert.Equal(t, events.AmendmentRecorded{InvoiceID: 8, Description: "Corrected billing address"}, evt)

	_, err = Record(inv, 2, "Added PO number", now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, inv.EditHistory, 2)
	assert.Equal(t, "Corrected billing address", inv.EditHistory[0].Description)
	assert.Equal(t, now.Add(time.Hour), inv.EditHistory[1].EditedAt)

	assert.Len(t, Pending(inv, 1), 1)
	assert.Nil(t, Pending(inv, 2))
}

func TestRecordRejectsBadDescriptions(t *testing.T) {
	inv := &domain.Invoice{ID: 8}
	_, err := Record(inv, 1, "   ", time.Now())
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = Record(inv, 1, strings.Repeat("x", maxDescriptionLength+1), time.Now())
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Empty(t, inv.EditHistory)
}
