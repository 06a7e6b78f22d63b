package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicecore/internal/booking/domain"
	"github.com/smallbiznis/invoicecore/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, booking *domain.Booking) error {
	return repository.ProvideStore[domain.Booking](db).Create(ctx, booking)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Booking, error) {
	return repository.ProvideStore[domain.Booking](db).FindOne(ctx, &domain.Booking{ID: id})
}
