package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/invoicecore/internal/clock"
	"github.com/smallbiznis/invoicecore/internal/contact/domain"
	"github.com/smallbiznis/invoicecore/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Clock    clock.Clock
	Validate *validator.Validate
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	clock    clock.Clock
	validate *validator.Validate
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("contact.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		clock:    p.Clock,
		validate: p.Validate,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateContactRequest) (domain.Contact, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	if err := s.validate.StructCtx(ctx, req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			switch verrs[0].Field() {
			case "name":
				return domain.Contact{}, domain.ErrInvalidName
			case "email":
				return domain.Contact{}, domain.ErrInvalidEmail
			}
		}
		return domain.Contact{}, domain.ErrInvalidRequest
	}

	now := s.clock.Now()
	contact := domain.Contact{
		ID:        s.genID.Generate(),
		Name:      req.Name,
		Email:     strings.ToLower(req.Email),
		Phone:     req.Phone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, &contact); err != nil {
		return domain.Contact{}, err
	}
	s.log.Info("contact created", zap.String("contact_id", contact.ID.String()))
	return contact, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Contact, error) {
	contact, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Contact{}, err
	}
	if contact == nil {
		return domain.Contact{}, domain.ErrNotFound
	}
	return *contact, nil
}

func (s *Service) List(ctx context.Context, req domain.ListContactRequest) (domain.ListContactResponse, error) {
	pageSize := pagination.Size(int(req.PageSize))
	items, err := s.repo.List(ctx, s.db, domain.ListContactFilter{
		Name:  strings.TrimSpace(req.Name),
		Email: strings.ToLower(strings.TrimSpace(req.Email)),
	}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListContactResponse{}, err
	}

	contacts, info := pagination.Page(items, pageSize, func(c *domain.Contact) snowflake.ID { return c.ID })
	return domain.ListContactResponse{PageInfo: info, Contacts: contacts}, nil
}
