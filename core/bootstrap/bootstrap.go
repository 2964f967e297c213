// Package bootstrap assembles infrastructure before the bot runtime starts:
// logger, ledger storage backend, and the backup notifier.
package bootstrap

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"postledger/backup"
	coreconfig "postledger/core/config"
	coredatabase "postledger/core/database"
	"postledger/core/logger"
	"postledger/ledger"
	"postledger/ledger/filestore"
	"postledger/ledger/pgstore"
)

// Options control the bootstrap pipeline. The function fields default to the
// production implementations and exist for tests.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	Store    ledger.Store
	Exporter ledger.Exporter
	// Notifier is nil when no backup chat is configured.
	Notifier *backup.Notifier
	// DB is non-nil only for the postgres backend.
	DB *sqlx.DB
}

// Run initializes the logger and the configured ledger backend.
func Run(opts Options) (*Result, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	var (
		notifier      *backup.Notifier
		storeNotifier ledger.Notifier = ledger.NopNotifier{}
	)
	if cfg.Backup.ChatID != 0 {
		notifier = backup.New(cfg.Backup.ChatID)
		storeNotifier = notifier
	}

	res := &Result{Notifier: notifier}
	switch cfg.Storage.Backend {
	case coreconfig.BackendPostgres:
		connect := opts.Connect
		if connect == nil {
			connect = coredatabase.Connect
		}
		db, err := connect(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
		}
		migrate := opts.Migrate
		if migrate == nil {
			migrate = coredatabase.RunMigrations
		}
		if err := migrate(cfg.Database); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
		store := pgstore.New(pgstore.Options{
			DB:                   db,
			Notifier:             storeNotifier,
			BackupOnStatusUpdate: cfg.Backup.OnStatusUpdate,
		})
		res.DB = db
		res.Store = store
		res.Exporter = store
	default:
		store, err := filestore.New(filestore.Options{
			Dir:                  cfg.Storage.Dir,
			Notifier:             storeNotifier,
			BackupOnStatusUpdate: cfg.Backup.OnStatusUpdate,
		})
		if err != nil {
			return nil, fmt.Errorf("bootstrap: storage initialization failed: %w", err)
		}
		res.Store = store
		res.Exporter = store
	}

	if notifier != nil {
		notifier.SetSource(res.Exporter)
	}
	return res, nil
}
