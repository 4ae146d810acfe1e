// Command scanlog inspects, renders and archives LiDAR scan logs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/lidarsim/internal/lidar/storage"
	sqlite "github.com/banshee-data/lidarsim/internal/lidar/storage/sqlite"
	"github.com/banshee-data/lidarsim/internal/monitoring"
	"github.com/banshee-data/lidarsim/internal/version"
)

func main() {
	in := flag.String("in", "", "scan log to read")
	dbPath := flag.String("db", "", "path to the sqlite run archive")
	list := flag.Bool("list", false, "list archived runs")
	doImport := flag.Bool("import", false, "archive the -in scan log")
	label := flag.String("label", "", "label for an imported run (default: file name)")
	export := flag.String("export", "", "run id to export from the archive")
	out := flag.String("out", "", "scan log path for -export (default: <label>.txt)")
	pngOut := flag.String("png", "", "render the loaded points top down to this PNG")
	debug := flag.Bool("debug", false, "enable diagnostic logging")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("scanlog"))
		return
	}
	if *debug {
		monitoring.SetLogWriters(monitoring.LogWriters{Ops: os.Stderr, Diag: os.Stderr})
	}
	defer monitoring.Sync()

	ctx := context.Background()
	var archive *sqlite.Archive
	if *dbPath != "" {
		var err error
		if archive, err = sqlite.Open(*dbPath); err != nil {
			log.Fatalf("open archive: %v", err)
		}
		defer archive.Close()
	}
	needArchive := func(what string) {
		if archive == nil {
			log.Fatalf("%s requires -db", what)
		}
	}

	if *list {
		needArchive("-list")
		if err := ListRuns(ctx, archive, os.Stdout); err != nil {
			log.Fatalf("list: %v", err)
		}
	}

	var data storage.Data
	if *in != "" {
		summary, err := Inspect(*in)
		if err != nil {
			log.Fatalf("read %s: %v", *in, err)
		}
		fmt.Println(summary)
		data = summary.Data

		if *doImport {
			needArchive("-import")
			run, created, err := ImportRun(ctx, archive, *in, *label, data)
			if err != nil {
				log.Fatalf("import: %v", err)
			}
			verb := "imported"
			if !created {
				verb = "already archived as"
			}
			fmt.Printf("%s run %s\n", verb, run.RunID)
		}
	} else if *doImport {
		log.Fatal("-import requires -in")
	}

	if *export != "" {
		needArchive("-export")
		path, loaded, err := ExportRun(ctx, archive, *export, *out)
		if err != nil {
			log.Fatalf("export: %v", err)
		}
		fmt.Printf("exported run %s to %s\n", *export, path)
		data = loaded
	}

	if *pngOut != "" {
		if data == nil {
			log.Fatal("-png requires -in or -export")
		}
		if err := RenderPNG(*pngOut, data); err != nil {
			log.Fatalf("render: %v", err)
		}
		fmt.Printf("wrote %s\n", *pngOut)
	}
}
