package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/invoicecore/internal/audit/domain"
	"github.com/smallbiznis/invoicecore/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return repository.ProvideStore[domain.AuditLog](db).Create(ctx, entry)
}

// ListByInvoice returns newest entries first and fetches one extra row so the
// caller can tell whether another page exists.
func (r *repo) ListByInvoice(ctx context.Context, db *gorm.DB, filter domain.HistoryFilter) ([]*domain.AuditLog, error) {
	opts := []repository.QueryOption{
		repository.Where("invoice_id = ?", filter.InvoiceID),
		repository.OrderBy("id desc"),
	}
	if action := strings.TrimSpace(filter.Action); action != "" {
		opts = append(opts, repository.Where("action = ?", action))
	}
	if filter.BeforeID != 0 {
		opts = append(opts, repository.Where("id < ?", filter.BeforeID))
	}
	if filter.Limit > 0 {
		opts = append(opts, repository.Limit(filter.Limit+1))
	}
	return repository.ProvideStore[domain.AuditLog](db).Find(ctx, nil, opts...)
}
