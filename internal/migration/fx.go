package migration

import (
	"github.com/smallbiznis/invoicecore/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.RunMigrations {
			log.Info("schema migrations disabled")
			return nil
		}
		if conn.Dialector.Name() != "postgres" {
			log.Info("creating schema from models", zap.String("dialect", conn.Dialector.Name()))
			return AutoMigrate(conn)
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
