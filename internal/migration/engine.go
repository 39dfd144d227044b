// Package migration transforms the legacy CSV export of the old practice
// management system into rows in the normalised schema. The engine streams
// each file with encoding auto-detection, synthesises stable client ids from
// the clinic id and legacy account code, and runs the stages as a DAG with a
// barrier before the enrichment pass.
package migration

import (
	"context"
	"fmt"
	"sync"

	"opticai_backend/platform/config"
	"opticai_backend/platform/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"
)

// queryer is the slice of pgx used by the stages. Both *pgxpool.Pool and a
// per-worker *pgxpool.Conn satisfy it.
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Engine runs one migration over a directory of legacy CSVs.
type Engine struct {
	pool *pgxpool.Pool
	log  *logger.Logger

	dir     string
	maxRows int

	parallel    bool
	workers     int
	perf        bool
	returnOnly  bool
	keepClients bool

	tenants *Tenants
	catalog []componentSpec

	blobs      *minio.Client
	blobBucket string

	// populated by the clients stage, read by every later stage
	accounts      map[string]int64
	clientClinics map[int64]int64

	layoutMu sync.Mutex
	layouts  map[int64]int64
}

// New builds an engine from the migration environment. MinIO is optional;
// without it the files stage records metadata only.
func New(pool *pgxpool.Pool, cfg config.MigrationConfig, blobCfg config.MinIOConfig, log *logger.Logger) (*Engine, error) {
	if cfg.GetMigrationCompanyID() <= 0 {
		return nil, fmt.Errorf("COMPANY_ID is required")
	}

	catalog, err := loadComponentCatalog()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		pool:          pool,
		log:           log,
		dir:           cfg.GetLegacyCSVDir(),
		maxRows:       cfg.GetCSVMaxRows(),
		parallel:      cfg.IsMigrationParallel(),
		workers:       cfg.GetMigrationWorkers(),
		perf:          cfg.IsMigrationPerf(),
		returnOnly:    cfg.IsReturnOnlyClients(),
		keepClients:   cfg.IsKeepClients(),
		tenants:       newTenants(cfg.GetMigrationCompanyID(), cfg.GetMigrationClinicID()),
		catalog:       catalog,
		accounts:      make(map[string]int64),
		clientClinics: make(map[int64]int64),
		layouts:       make(map[int64]int64),
	}

	if blobCfg.IsMinIOEnabled() {
		client, err := minio.New(blobCfg.GetMinIOEndpoint(), &minio.Options{
			Creds:  credentials.NewStaticV4(blobCfg.GetMinIOAccessKey(), blobCfg.GetMinIOSecretKey(), ""),
			Secure: blobCfg.GetMinIOUseSSL(),
		})
		if err != nil {
			return nil, fmt.Errorf("init minio: %w", err)
		}
		e.blobs = client
		e.blobBucket = blobCfg.GetMinIOBucketLegacyFiles()
	}

	return e, nil
}

// Run executes the full pipeline: clients, then (exams ∥ contact lenses),
// then the enrichment barrier, then the secondary entities. A stage failure
// aborts the run; committed batches stay in place.
func (e *Engine) Run(ctx context.Context) error {
	if e.dir == "" {
		return fmt.Errorf("LEGACY_CSV_DIR is required")
	}

	session, release, err := e.acquireSession(ctx)
	if err != nil {
		return err
	}

	if err := e.tenants.verify(ctx, session); err != nil {
		release()
		return err
	}

	if e.returnOnly {
		e.accounts, err = e.matchExistingClients(ctx, session)
	} else {
		e.accounts, err = e.migrateClients(ctx, session)
	}
	release()
	if err != nil {
		return fmt.Errorf("clients stage: %w", err)
	}

	if err := e.runStages(ctx, []stage{
		{"exams", e.migrateExams},
		{"contact_lenses", e.migrateContactLenses},
	}); err != nil {
		return err
	}

	// Barrier: enrichment must observe committed exams and orders.
	if err := e.runStages(ctx, []stage{
		{"lens_checks", e.migrateLensChecks},
	}); err != nil {
		return err
	}

	if err := e.runStages(ctx, []stage{
		{"referrals", e.migrateReferrals},
		{"files", e.migrateFiles},
		{"medical_logs", e.migrateMedicalLogs},
		{"appointments", e.migrateAppointments},
	}); err != nil {
		return err
	}

	e.log.Info("migration complete", "company_id", e.tenants.CompanyID, "clients", len(e.accounts))
	return nil
}

type stage struct {
	name string
	run  func(ctx context.Context, db queryer) error
}

// runStages executes a tier of stages, in parallel with per-worker sessions
// when enabled, sequentially otherwise.
func (e *Engine) runStages(ctx context.Context, stages []stage) error {
	runOne := func(ctx context.Context, s stage) error {
		session, release, err := e.acquireSession(ctx)
		if err != nil {
			return err
		}
		defer release()

		e.log.Info("stage started", "stage", s.name)
		if err := s.run(ctx, session); err != nil {
			return fmt.Errorf("stage %s: %w", s.name, err)
		}
		e.log.Info("stage finished", "stage", s.name)
		return nil
	}

	if !e.parallel || len(stages) == 1 {
		for _, s := range stages {
			if err := runOne(ctx, s); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if e.workers > 0 {
		g.SetLimit(e.workers)
	}
	for _, s := range stages {
		g.Go(func() error {
			return runOne(gctx, s)
		})
	}
	return g.Wait()
}

// acquireSession checks out a connection and, on the fast path, relaxes
// durability and disables triggers for the session. The release func
// restores both settings before returning the connection to the pool.
func (e *Engine) acquireSession(ctx context.Context) (queryer, func(), error) {
	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}

	if e.perf {
		if _, err := conn.Exec(ctx, `SET synchronous_commit = off`); err != nil {
			conn.Release()
			return nil, nil, err
		}
		if _, err := conn.Exec(ctx, `SET session_replication_role = replica`); err != nil {
			conn.Release()
			return nil, nil, err
		}
	}

	release := func() {
		if e.perf {
			_, _ = conn.Exec(context.Background(), `SET session_replication_role = DEFAULT`)
			_, _ = conn.Exec(context.Background(), `SET synchronous_commit = on`)
		}
		conn.Release()
	}
	return conn, release, nil
}
