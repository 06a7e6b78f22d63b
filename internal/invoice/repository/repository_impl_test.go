package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicecore/internal/invoice/domain"
	"github.com/smallbiznis/invoicecore/internal/invoice/repository"
	"github.com/smallbiznis/invoicecore/internal/testutil"
	"github.com/smallbiznis/invoicecore/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

func newInvoice(id snowflake.ID, number string, status domain.Status) *domain.Invoice {
	due := now.Add(-time.Hour)
	return &domain.Invoice{
		ID:              id,
		InvoiceNumber:   number,
		LineItems:       []domain.LineItem{domain.CustomLine("Work", 1, 1000)},
		Currency:        "USD",
		Status:          status,
		DueDate:         &due,
		TotalCents:      1000,
		BalanceDueCents: 1000,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestUpdateVersionedRejectsStaleWriters(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := repository.Provide()
	ctx := context.Background()

	inv := newInvoice(1, "INV-00001", domain.StatusDraft)
	require.NoError(t, repo.Insert(ctx, db, inv))
	assert.Equal(t, int64(1), inv.Version)

	first, err := repo.FindByID(ctx, db, 1)
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, db, 1)
	require.NoError(t, err)

	first.Notes = "first writer"
	require.NoError(t, repo.UpdateVersioned(ctx, db, first, 1))
	assert.Equal(t, int64(2), first.Version)

	second.Notes = "second writer"
	err = repo.UpdateVersioned(ctx, db, second, 1)
	assert.True(t, errors.Is(err, domain.ErrConcurrentModification))

	stored, err := repo.FindByID(ctx, db, 1)
	require.NoError(t, err)
	assert.Equal(t, "first writer", stored.Notes)
	assert.Equal(t, int64(2), stored.Version)

	missing, err := repo.FindByID(ctx, db, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestNextSequenceIsMonotonic(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := repository.Provide()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := repo.NextSequence(ctx, db, "invoice")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	other, err := repo.NextSequence(ctx, db, "credit_note")
	require.NoError(t, err)
	assert.Equal(t, int64(1), other)
}

func TestDeleteOnlyRemovesUnpaidDrafts(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := repository.Provide()
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, db, newInvoice(1, "INV-00001", domain.StatusDraft)))
	require.NoError(t, repo.Insert(ctx, db, newInvoice(2, "INV-00002", domain.StatusSent)))

	assert.True(t, errors.Is(repo.Delete(ctx, db, 2, 1), domain.ErrConcurrentModification))
	assert.True(t, errors.Is(repo.Delete(ctx, db, 1, 7), domain.ErrConcurrentModification))
	require.NoError(t, repo.Delete(ctx, db, 1, 1))

	gone, err := repo.FindByID(ctx, db, 1)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestListAndOverdueCandidates(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := repository.Provide()
	ctx := context.Background()

	statuses := []domain.Status{domain.StatusDraft, domain.StatusSent, domain.StatusViewed, domain.StatusPaid, domain.StatusSent}
	for i, status := range statuses {
		inv := newInvoice(snowflake.ID(i+1), "INV-0000"+string(rune('1'+i)), status)
		if i == 4 {
			inv.Tags = []string{"vip"}
			inv.BalanceDueCents = 0
		}
		require.NoError(t, repo.Insert(ctx, db, inv))
	}

	ids, err := repo.ListOverdueCandidates(ctx, db, now, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []snowflake.ID{2, 3}, ids)

	page, err := repo.List(ctx, db, domain.ListInvoiceFilter{}, pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, snowflake.ID(5), page[0].ID)

	token, err := pagination.EncodeCursor(pagination.Cursor{ID: page[1].ID.String()})
	require.NoError(t, err)
	rest, err := repo.List(ctx, db, domain.ListInvoiceFilter{}, pagination.Pagination{PageSize: 10, PageToken: token})
	require.NoError(t, err)
	assert.Len(t, rest, 3)

	tagged, err := repo.List(ctx, db, domain.ListInvoiceFilter{Tag: "vip"}, pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, snowflake.ID(5), tagged[0].ID)

	_, err = repo.List(ctx, db, domain.ListInvoiceFilter{}, pagination.Pagination{PageToken: "not-a-token"})
	assert.True(t, errors.Is(err, domain.ErrInvalidPageToken))
}
