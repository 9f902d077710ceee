// The lexvault-sweeper runs scheduled maintenance against the auth
// database: expiring abandoned ghost sessions and pruning old security
// events. It is deployed as a singleton alongside the API instances.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/lexvault/lexvault/pkg/audit"
	"github.com/lexvault/lexvault/pkg/firms"
	"github.com/lexvault/lexvault/pkg/ghost"
)

var (
	dbURL          = flag.String("db-url", getEnv("LEXVAULT_POSTGRES_URL", "postgres://localhost/lexvault?sslmode=disable"), "PostgreSQL connection URL")
	sweepSchedule  = flag.String("sweep-schedule", "*/5 * * * *", "Cron schedule for ghost session expiry sweep")
	pruneSchedule  = flag.String("prune-schedule", "30 0 * * *", "Cron schedule for audit event pruning (default: 00:30 UTC)")
	auditRetention = flag.Duration("audit-retention", 90*24*time.Hour, "How long security events are kept")
	runOnce        = flag.Bool("run-once", false, "Run one sweep and prune pass, then exit")
)

func main() {
	flag.Parse()

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	auditLog, err := audit.NewDBLogger(db)
	if err != nil {
		log.Fatalf("Failed to initialize audit store: %v", err)
	}

	ghostStore := ghost.NewPostgresStore(db)
	if err := ghostStore.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to ensure ghost session schema: %v", err)
	}

	firmSvc, err := firms.NewService(firms.NewPostgresStore(db))
	if err != nil {
		log.Fatalf("Failed to initialize firm service: %v", err)
	}

	// The manager is what writes the ghost.session_expired audit record
	// for each swept session.
	ghosts := ghost.NewManager(ghostStore, firmSvc, auditLog)

	if *runOnce {
		sweepGhostSessions(ghosts)
		pruneAuditEvents(auditLog, *auditRetention)
		return
	}

	c := cron.New()

	if _, err := c.AddFunc(*sweepSchedule, func() { sweepGhostSessions(ghosts) }); err != nil {
		log.Fatalf("Failed to schedule ghost sweep: %v", err)
	}
	if _, err := c.AddFunc(*pruneSchedule, func() { pruneAuditEvents(auditLog, *auditRetention) }); err != nil {
		log.Fatalf("Failed to schedule audit prune: %v", err)
	}

	c.Start()
	log.Println("LexVault sweeper started")
	log.Printf("Ghost sweep schedule: %s", *sweepSchedule)
	log.Printf("Audit prune schedule: %s (retention %s)", *pruneSchedule, *auditRetention)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutting down gracefully...")

	ctx := c.Stop()
	<-ctx.Done()

	log.Println("Sweeper stopped")
}

func sweepGhostSessions(ghosts *ghost.Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := ghosts.Sweep(ctx)
	if err != nil {
		log.Printf("Ghost session sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Expired %d abandoned ghost sessions", n)
	}
}

func pruneAuditEvents(auditLog *audit.DBLogger, retention time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-retention)
	n, err := auditLog.PruneOlderThan(ctx, cutoff)
	if err != nil {
		log.Printf("Audit prune failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Pruned %d security events older than %s", n, cutoff.Format("2006-01-02"))
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
