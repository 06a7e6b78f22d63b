package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicecore/internal/audit"
	"github.com/smallbiznis/invoicecore/internal/booking"
	"github.com/smallbiznis/invoicecore/internal/catalog"
	"github.com/smallbiznis/invoicecore/internal/clock"
	"github.com/smallbiznis/invoicecore/internal/config"
	"github.com/smallbiznis/invoicecore/internal/contact"
	"github.com/smallbiznis/invoicecore/internal/coupon"
	"github.com/smallbiznis/invoicecore/internal/events"
	"github.com/smallbiznis/invoicecore/internal/invoice"
	"github.com/smallbiznis/invoicecore/internal/migration"
	"github.com/smallbiznis/invoicecore/internal/observability"
	"github.com/smallbiznis/invoicecore/internal/payment"
	"github.com/smallbiznis/invoicecore/internal/scheduler"
	"github.com/smallbiznis/invoicecore/internal/validation"
	"github.com/smallbiznis/invoicecore/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		validation.Module,
		events.Module,
		audit.Module,

		// Reference data
		contact.Module,
		catalog.Module,
		booking.Module,
		coupon.Module,

		// Financial core
		invoice.Module,
		payment.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
