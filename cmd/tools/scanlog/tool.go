package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/banshee-data/lidarsim/internal/fsutil"
	"github.com/banshee-data/lidarsim/internal/lidar/pointcloud"
	"github.com/banshee-data/lidarsim/internal/lidar/scanlog"
	"github.com/banshee-data/lidarsim/internal/lidar/storage"
	sqlite "github.com/banshee-data/lidarsim/internal/lidar/storage/sqlite"
	"github.com/banshee-data/lidarsim/internal/security"
)

var fsys fsutil.FileSystem = fsutil.OSFileSystem{}

// Summary describes a decoded scan log.
type Summary struct {
	Path string
	scanlog.Result
}

func (s Summary) String() string {
	return fmt.Sprintf("%s: %d lines, %d records (%d without angles), %d skipped, %d scan keys",
		s.Path, s.Lines, s.Records, s.Foreign, s.Skipped, len(s.Data))
}

// Inspect loads the scan log at path.
func Inspect(path string) (Summary, error) {
	task, err := scanlog.Load(fsys, path)
	if err != nil {
		return Summary{}, err
	}
	res, err := task.Wait()
	return Summary{Path: path, Result: res}, err
}

// ImportRun archives data read from path. An empty label defaults to the
// file name without its extension.
func ImportRun(ctx context.Context, archive *sqlite.Archive, path, label string, data storage.Data) (sqlite.Run, bool, error) {
	if label == "" {
		base := filepath.Base(path)
		label = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return archive.SaveRun(ctx, label, sqlite.SourceImport, data)
}

// ExportRun writes an archived run back out as a scan log. An empty out
// derives the file name from the run's label, or its id when unlabelled.
func ExportRun(ctx context.Context, archive *sqlite.Archive, runID, out string) (string, storage.Data, error) {
	run, err := archive.GetRun(ctx, runID)
	if err != nil {
		return "", nil, err
	}
	if out == "" {
		name := run.Label
		if name == "" {
			name = run.RunID
		}
		out = security.SanitizeFilename(name) + ".txt"
	}
	if err := security.ValidateOutputPath(out); err != nil {
		return "", nil, err
	}
	data, err := archive.LoadRun(ctx, runID)
	if err != nil {
		return "", nil, err
	}
	store := storage.NewStore()
	store.ReplaceAll(data)
	if _, err := scanlog.Save(fsys, out, store); err != nil {
		return "", nil, err
	}
	return out, data, nil
}

// RenderPNG draws every point in data top down.
func RenderPNG(path string, data storage.Data) error {
	if err := security.ValidateOutputPath(path); err != nil {
		return err
	}
	store := storage.NewStore()
	store.ReplaceAll(data)
	cloud := pointcloud.NewCloud(nil, pointcloud.DefaultOptions())
	defer cloud.Close()
	cloud.LoadAll(store.Flatten())
	return pointcloud.SavePNG(path, cloud.Snapshot(), pointcloud.PlotOptions{
		Title: fmt.Sprintf("%s (%d points)", filepath.Base(path), cloud.Len()),
	})
}

// ListRuns prints the archive contents as a table.
func ListRuns(ctx context.Context, archive *sqlite.Archive, w io.Writer) error {
	runs, err := archive.ListRuns(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tLABEL\tSOURCE\tKEYS\tPOINTS\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			r.RunID, r.Label, r.Source, r.ScanKeys, r.PointCount, r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}
