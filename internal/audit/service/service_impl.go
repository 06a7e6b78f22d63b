package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/invoicecore/internal/audit/domain"
	"github.com/smallbiznis/invoicecore/internal/audit/masking"
	"github.com/smallbiznis/invoicecore/internal/clock"
	obscontext "github.com/smallbiznis/invoicecore/internal/observability/context"
	"github.com/smallbiznis/invoicecore/pkg/db/pagination"
	"github.com/smallbiznis/invoicecore/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
	clock clock.Clock
}

func NewService(p Params) auditdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.NewSystemClock()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: c,
	}
}

func (s *Service) Record(ctx context.Context, tx *gorm.DB, entry auditdomain.Entry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	if entry.InvoiceID == 0 {
		return auditdomain.ErrInvalidInvoice
	}

	metadata := masking.MaskSensitive(entry.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		metadata["request_id"] = requestID
	}
	if correlationID := correlation.ExtractCorrelationID(ctx); correlationID != "" {
		metadata["correlation_id"] = correlationID
	}

	actorType, actorID := actorFrom(ctx)
	row := auditdomain.AuditLog{
		ID:             s.genID.Generate(),
		InvoiceID:      entry.InvoiceID,
		InvoiceVersion: entry.InvoiceVersion,
		Action:         action,
		ActorType:      actorType,
		ActorID:        actorID,
		Metadata:       datatypes.JSONMap(metadata),
		CreatedAt:      s.clock.Now().UTC(),
	}

	db := tx
	if db == nil {
		db = s.db
	}
	if err := s.repo.Insert(ctx, db, &row); err != nil {
		s.log.Warn("audit entry not written",
			zap.String("action", action),
			zap.String("invoice_id", entry.InvoiceID.String()),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// History pages through an invoice's audit trail, newest first.
func (s *Service) History(ctx context.Context, req auditdomain.HistoryRequest) (auditdomain.HistoryResponse, error) {
	if req.InvoiceID == 0 {
		return auditdomain.HistoryResponse{}, auditdomain.ErrInvalidInvoice
	}

	before, err := pagination.DecodeID(req.PageToken)
	if err != nil {
		return auditdomain.HistoryResponse{}, auditdomain.ErrInvalidPageToken
	}
	pageSize := pagination.Size(req.PageSize)

	rows, err := s.repo.ListByInvoice(ctx, s.db, auditdomain.HistoryFilter{
		InvoiceID: req.InvoiceID,
		Action:    req.Action,
		BeforeID:  before,
		Limit:     pageSize,
	})
	if err != nil {
		return auditdomain.HistoryResponse{}, err
	}

	entries, info := pagination.Page(rows, pageSize, func(row *auditdomain.AuditLog) snowflake.ID { return row.ID })
	return auditdomain.HistoryResponse{PageInfo: info, Entries: entries}, nil
}

func actorFrom(ctx context.Context) (string, *string) {
	actorType, actorID := obscontext.ActorFromContext(ctx)
	if actorType == "" {
		return string(auditdomain.ActorTypeSystem), nil
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return actorType, nil
	}
	return actorType, &actorID
}
