package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicecore/internal/contact/domain"
	"github.com/smallbiznis/invoicecore/pkg/db/pagination"
	"github.com/smallbiznis/invoicecore/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) store(db *gorm.DB) repository.Repository[domain.Contact] {
	return repository.ProvideStore[domain.Contact](db)
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, contact *domain.Contact) error {
	return r.store(db).Create(ctx, contact)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Contact, error) {
	return r.store(db).FindOne(ctx, &domain.Contact{ID: id})
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListContactFilter, page pagination.Pagination) ([]*domain.Contact, error) {
	opts := []repository.QueryOption{repository.OrderBy("id desc")}
	if filter.Name != "" {
		opts = append(opts, repository.Where("name = ?", filter.Name))
	}
	if filter.Email != "" {
		opts = append(opts, repository.Where("email = ?", filter.Email))
	}
	before, err := pagination.DecodeID(page.PageToken)
	if err != nil {
		return nil, domain.ErrInvalidRequest
	}
	if before != 0 {
		opts = append(opts, repository.Where("id < ?", before))
	}
	opts = append(opts, repository.Limit(page.PageSize+1))
	return r.store(db).Find(ctx, nil, opts...)
}
