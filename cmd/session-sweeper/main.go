package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/proaktivadmin/dokumenthub_backend/config"
	"github.com/proaktivadmin/dokumenthub_backend/models"
	"gorm.io/gorm"
)

// One-shot sweep of overdue pending sync sessions. The server runs the same
// sweep in-process; this binary exists for running it as a scheduled job
// with SKIP_MIGRATIONS=true on the server.
func main() {
	dryRun := flag.Bool("dry-run", false, "Report overdue sessions without expiring them.")
	olderThan := flag.Duration("older-than", 0, "Optional: only expire sessions whose deadline passed at least this long ago.")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	cutoff := time.Now().Add(-*olderThan)
	if *dryRun {
		var count int64
		if err := db.WithContext(ctx).
			Model(&models.SyncSession{}).
			Where("status = ? AND expires_at < ?", models.SyncSessionStatusPending, cutoff).
			Count(&count).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to count overdue sessions: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("dry-run: %d overdue pending sessions\n", count)
		return
	}

	result := db.WithContext(ctx).
		Model(&models.SyncSession{}).
		Where("status = ? AND expires_at < ?", models.SyncSessionStatusPending, cutoff).
		Updates(map[string]interface{}{
			"status":       models.SyncSessionStatusExpired,
			"finalized_at": time.Now(),
			"version":      gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		fmt.Fprintf(os.Stderr, "failed to expire sessions: %v\n", result.Error)
		os.Exit(1)
	}
	fmt.Printf("expired %d sessions\n", result.RowsAffected)
}
