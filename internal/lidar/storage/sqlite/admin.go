package sqlite

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/lidarsim/internal/monitoring"
)

// AttachAdminRoutes mounts live SQL, a run listing and a database backup
// on the debug handler.
func (a *Archive) AttachAdminRoutes(debug *tsweb.DebugHandler) error {
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(a.path), a.db, &tailsql.DBOptions{
		Label: "LiDAR run archive",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("runs", "Archived LiDAR runs (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		runs, err := a.ListRuns(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(runs)
	}))

	debug.Handle("backup", "Create and download a backup of the archive now", http.HandlerFunc(a.handleBackup))
	return nil
}

func (a *Archive) handleBackup(w http.ResponseWriter, r *http.Request) {
	dir, err := os.MkdirTemp("", "lidarsim-backup-")
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup dir: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			monitoring.Opsf("archive: failed to remove backup dir: %v", err)
		}
	}()

	name := fmt.Sprintf("lidar-runs-%d.db", time.Now().Unix())
	backupPath := filepath.Join(dir, name)
	if _, err := a.db.ExecContext(r.Context(), "VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	f, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/gzip")
	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, f); err != nil {
		monitoring.Opsf("archive: backup transfer failed: %v", err)
	}
}
