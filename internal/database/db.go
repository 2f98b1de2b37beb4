package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"debt-tracker-backend/internal/config"
	"debt-tracker-backend/internal/models"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// sqliteDriver is go-sqlite3 with a Unicode-aware lower(). The built-in one
// only folds ASCII.
const sqliteDriver = "sqlite3_unicode"

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("lower", lowerUnicode, true)
		},
	})
}

// NULL and non-text values pass through like the built-in.
func lowerUnicode(v any) any {
	switch s := v.(type) {
	case string:
		return strings.ToLower(s)
	case []byte:
		if s == nil {
			return nil
		}
		return strings.ToLower(string(s))
	}
	return v
}

// Init opens the configured store, migrates it and makes it the package DB.
func Init(cfg *config.Config, log *zap.Logger) error {
	db, err := Open(cfg.Database.Driver, cfg.Database.DSN, log)
	if err != nil {
		return err
	}
	if err := Migrate(db); err != nil {
		return err
	}
	DB = db
	log.Info("database ready", zap.String("driver", cfg.Database.Driver))
	return nil
}

func Open(driver, dsn string, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.New(sqlite.Config{DriverName: sqliteDriver, DSN: dsn})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(zap.NewStdLog(log), gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	if driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// One connection serialises writers (sqlite has a single writer
		// anyway) and keeps the foreign_keys pragma in effect.
		sqlDB.SetMaxOpenConns(1)
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Debt{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

// EnsureDefaultCategory resolves the fallback category by name, creating it
// on first start. Debts created without a category are attached to it.
func EnsureDefaultCategory(db *gorm.DB, name string) (models.Category, error) {
	name = strings.TrimSpace(name)
	var cat models.Category
	if err := db.Where(models.Category{Name: name}).FirstOrCreate(&cat).Error; err != nil {
		return models.Category{}, fmt.Errorf("default category %q: %w", name, err)
	}
	return cat, nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
