package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicecore/pkg/db/pagination"
)

type ListContactRequest struct {
	PageToken string
	PageSize  int32
	Name      string
	Email     string
}

type ListContactFilter struct {
	Name  string
	Email string
}

type ListContactResponse struct {
	pagination.PageInfo
	Contacts []Contact `json:"contacts"`
}

type CreateContactRequest struct {
	Name  string `validate:"required,max=200"`
	Email string `validate:"required,email"`
	Phone string `validate:"omitempty,max=32"`
}

type Service interface {
	Create(context.Context, CreateContactRequest) (Contact, error)
	List(context.Context, ListContactRequest) (ListContactResponse, error)
	GetByID(ctx context.Context, id snowflake.ID) (Contact, error)
}

var (
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidEmail   = errors.New("invalid_email")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("contact_not_found")
)
