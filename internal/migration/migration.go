package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/invoicecore/internal/audit/domain"
	bookingdomain "github.com/smallbiznis/invoicecore/internal/booking/domain"
	catalogdomain "github.com/smallbiznis/invoicecore/internal/catalog/domain"
	contactdomain "github.com/smallbiznis/invoicecore/internal/contact/domain"
	coupondomain "github.com/smallbiznis/invoicecore/internal/coupon/domain"
	"github.com/smallbiznis/invoicecore/internal/events"
	invoicedomain "github.com/smallbiznis/invoicecore/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/invoicecore/internal/payment/domain"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded postgres schema. Already applied
// versions are skipped.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "invoicecore_schema_migrations"})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Closing the migrator would close the shared *sql.DB.

	return nil
}

// AutoMigrate creates the schema from the gorm models. It backs sqlite
// deployments and tests, where the postgres migrations do not apply.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&contactdomain.Contact{},
		&catalogdomain.Item{},
		&bookingdomain.Booking{},
		&coupondomain.Coupon{},
		&invoicedomain.InvoiceSequence{},
		&invoicedomain.Invoice{},
		&invoicedomain.Amendment{},
		&events.OutboxEvent{},
		&paymentdomain.Payment{},
		&paymentdomain.Allocation{},
		&paymentdomain.Session{},
		&paymentdomain.EventRecord{},
		&auditdomain.AuditLog{},
	)
}
