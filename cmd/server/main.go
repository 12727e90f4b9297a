package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/galapoto/finforensics/internal/artifacts"
	"github.com/galapoto/finforensics/internal/config"
	"github.com/galapoto/finforensics/internal/engine"
	"github.com/galapoto/finforensics/internal/evidence"
	"github.com/galapoto/finforensics/internal/fxartifact"
	"github.com/galapoto/finforensics/internal/httpapi"
	"github.com/galapoto/finforensics/internal/lifecycle"
	"github.com/galapoto/finforensics/internal/store"
)

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func main() {
	start := time.Now()

	cfg := config.Load()
	migrate := os.Getenv("FORENSICS_DB_MIGRATE") == "1"

	log.Printf("[startup] begin addr=%s migrate=%t engine_enabled=%t", cfg.HTTPAddr, migrate, cfg.EngineEnabled())

	cpu := runtime.GOMAXPROCS(0)
	defMaxConns := clamp(cpu*4, 4, 50)
	maxConns := defMaxConns
	log.Printf("[startup] cpu=%d maxConns=%d", cpu, maxConns)

	startCtx, startCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer startCancel()

	log.Printf("[startup] parsing DB config")
	poolCfg, err := pgxpool.ParseConfig(cfg.DBDSN)
	if err != nil {
		log.Fatalf("[startup] parse dsn failed: %v", err)
	}
	poolCfg.MaxConns = int32(maxConns)
	poolCfg.MinConns = 1
	poolCfg.HealthCheckPeriod = 10 * time.Second
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	log.Printf("[startup] connecting to DB")
	pool, err := pgxpool.NewWithConfig(startCtx, poolCfg)
	if err != nil {
		log.Fatalf("[startup] db connect failed: %v", err)
	}
	defer pool.Close()

	log.Printf("[startup] ping DB")
	if err := pool.Ping(startCtx); err != nil {
		log.Fatalf("[startup] db ping failed: %v", err)
	}

	if migrate {
		log.Printf("[startup] running migrations")
		if err := store.Migrate(startCtx, pool); err != nil {
			log.Fatalf("[startup] migrations failed: %v", err)
		}
		log.Printf("[startup] migrations complete")
	} else {
		log.Printf("[startup] migrations disabled")
	}

	db := store.New(pool)

	var artifactStore artifacts.Store
	switch cfg.ArtifactStoreKind {
	case "memory":
		artifactStore = artifacts.NewMemoryStore()
	default:
		artifactStore = artifacts.NewFilesystemStore(cfg.ArtifactStoreRoot)
	}

	fxSvc := &fxartifact.Service{Store: artifactStore, Metadata: store.NewFxArtifacts(db)}
	evidenceReg := &evidence.Registry{Repo: store.NewEvidence(db)}
	lifecycleMachine := &lifecycle.Machine{Store: store.NewLifecycle(db)}

	eng := &engine.Engine{
		EngineEnabled:    cfg.EngineEnabled(),
		DatasetVersions:  store.NewDatasetVersions(db),
		CanonicalRecords: store.NewCanonicalRecords(db),
		FxArtifacts:      fxSvc,
		Runs:             store.NewRuns(db),
		Findings:         store.NewFindings(db),
		Leakage:          store.NewLeakage(db),
		Evidence:         evidenceReg,
		Lifecycle:        lifecycleMachine,
	}

	findingsRepo := store.NewFindings(db)
	leakageRepo := store.NewLeakage(db)
	runsRepo := store.NewRuns(db)
	canonicalRecs := store.NewCanonicalRecords(db)

	h := httpapi.NewHandlers(httpapi.Handlers{
		Engine:            eng,
		FxArtifacts:       fxSvc,
		Runs:              runsRepo,
		Findings:          findingsRepo,
		Leakage:           leakageRepo,
		CanonicalRecs:     canonicalRecs,
		MaxReportFindings: cfg.DefaultMaxReportFindings,
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.Router(h, cfg.HTTPMaxInflight),

		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf(
		"[startup] ready in %s, listening on %s",
		time.Since(start).Truncate(time.Millisecond),
		cfg.HTTPAddr,
	)

	log.Fatal(srv.ListenAndServe())
}
