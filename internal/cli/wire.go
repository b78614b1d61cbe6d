package cli

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/statusexport/statusexport/internal/catalog"
	catalogpostgres "github.com/statusexport/statusexport/internal/catalog/postgres"
	"github.com/statusexport/statusexport/internal/config"
	"github.com/statusexport/statusexport/internal/export"
	"github.com/statusexport/statusexport/internal/loader"
	"github.com/statusexport/statusexport/internal/pipeline"
	"github.com/statusexport/statusexport/internal/query/duckdb"
	"github.com/statusexport/statusexport/internal/storage"
	"github.com/statusexport/statusexport/internal/storage/local"
	s3store "github.com/statusexport/statusexport/internal/storage/s3"
)

// Components are the stage implementations a run is assembled from.
type Components struct {
	Resolver  catalog.Resolver
	Loader    pipeline.Loader
	Exporter  pipeline.Exporter
	Committer pipeline.Committer
	Close     func()
}

type WireFunc func(ctx context.Context, cfg config.Config, logger *slog.Logger) (Components, error)

// Wire assembles the Postgres catalog, the S3 and local object stores and the
// DuckDB reader. Nothing is dialed here: an unreachable catalog surfaces from
// the resolve stage.
func Wire(_ context.Context, cfg config.Config, logger *slog.Logger) (Components, error) {
	db, err := catalogpostgres.Connect(catalogDBConfig(cfg.Catalog))
	if err != nil {
		return Components{}, err
	}

	s3Opener, err := s3store.NewOpener(s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		_ = db.Close()
		return Components{}, err
	}
	router := storage.Router{
		storage.SchemeS3:   s3Opener,
		storage.SchemeFile: local.Opener{},
	}

	repo := catalogpostgres.NewRepository(db)
	return Components{
		Resolver:  repo,
		Loader:    loader.New(router, duckdb.NewEngine(cfg.Loader.DownloadConcurrency), logger),
		Exporter:  export.New(router, logger),
		Committer: repo,
		Close:     func() { _ = db.Close() },
	}, nil
}

func openCatalogDB(ctx context.Context, cfg config.CatalogConfig) (*sql.DB, error) {
	return catalogpostgres.Open(ctx, catalogDBConfig(cfg))
}

func catalogDBConfig(cfg config.CatalogConfig) catalogpostgres.DBConfig {
	return catalogpostgres.DBConfig{
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}
}
