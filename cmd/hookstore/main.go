package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/hookstore/hookstore/config"
	"github.com/hookstore/hookstore/internal/endpoint"
	"github.com/hookstore/hookstore/internal/filesystem"
	"github.com/hookstore/hookstore/internal/history"
	"github.com/hookstore/hookstore/internal/idalloc"
	"github.com/hookstore/hookstore/internal/registry"
	"github.com/hookstore/hookstore/internal/transfer"
	"github.com/hookstore/hookstore/pkg/env"
	"github.com/hookstore/hookstore/pkg/logging"
)

func main() {
	env.LoadEnv()
	logging.InitLogger(env.GetEnv("HOOKSTORE_DEBUG", "") != "")
	config.LoadConfig(".")

	app := &cli.App{
		Name:  "hookstore",
		Usage: "chunked file storage over webhook upload endpoints",
		Commands: []*cli.Command{
			uploadCommand(),
			downloadCommand(),
			listCommand(),
			exportCommand(),
			importCommand(),
			historyCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logging.Log.Fatal(err)
	}
}

// newFileSystem wires the configured components together. The endpoint
// pool is validated up front so an empty configuration fails before any
// I/O happens.
func newFileSystem() (*filesystem.FileSystem, *history.Store, error) {
	cfg := config.Config

	pool, err := endpoint.NewPool(cfg.Endpoints)
	if err != nil {
		return nil, nil, err
	}

	client := endpoint.NewWebhookClient(time.Duration(cfg.HTTPTimeoutSec) * time.Second)
	retry := transfer.Policy{
		Attempts: cfg.RetryAttempts,
		Base:     time.Duration(cfg.RetryBaseMs) * time.Millisecond,
		Max:      time.Duration(cfg.RetryMaxMs) * time.Millisecond,
	}
	engine := transfer.NewEngine(pool, client, cfg.WorkDir, cfg.BatchSize, cfg.FetchConcurrency, retry, logging.Log)

	reg := registry.Open(cfg.RegistryPath)
	alloc, err := idalloc.New(cfg.IDMin, cfg.IDMax)
	if err != nil {
		return nil, nil, err
	}

	hist, err := history.Open(cfg.HistoryPath)
	if err != nil {
		logging.Log.WithError(err).Warn("history log unavailable, continuing without it")
		hist = nil
	}

	fs := filesystem.New(reg, alloc, engine, hist, cfg.ChunkSize, logging.Log)
	return fs, hist, nil
}

// monitorProgress logs transfer progress until the returned stop
// function is called.
func monitorProgress(tracker *transfer.Tracker) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				for _, p := range tracker.Active() {
					logging.Log.Infof("%s %s: %.1f%% (%s/%s, %s/s)",
						p.Direction, p.FileName, p.Percent(),
						humanize.Bytes(uint64(p.BytesDone)), humanize.Bytes(uint64(p.TotalBytes)),
						humanize.Bytes(uint64(p.Speed)))
				}
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

func uploadCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Split a file into chunks and store it",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("usage: upload <path>")
			}
			fs, hist, err := newFileSystem()
			if err != nil {
				return err
			}
			defer closeHistory(hist)

			stop := monitorProgress(fs.Tracker())
			defer stop()

			id, err := fs.UploadFile(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			fmt.Printf("stored as id %d\n", id)
			return nil
		},
	}
}

func downloadCommand() *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "Retrieve a stored file by id",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dir",
				Usage: "destination directory (defaults to the configured download dir)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("usage: download <id>")
			}
			id, err := strconv.Atoi(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid file id %q", c.Args().First())
			}

			fs, hist, err := newFileSystem()
			if err != nil {
				return err
			}
			defer closeHistory(hist)

			dir := c.String("dir")
			if dir == "" {
				dir = config.Config.DownloadDir
			}

			stop := monitorProgress(fs.Tracker())
			defer stop()

			path, err := fs.DownloadFile(c.Context, id, dir)
			if err != nil {
				return err
			}
			fmt.Printf("downloaded to %s\n", path)
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List all stored files",
		Action: func(c *cli.Context) error {
			fs, hist, err := newFileSystem()
			if err != nil {
				return err
			}
			defer closeHistory(hist)

			entries, err := fs.List()
			if err != nil {
				return err
			}
			fmt.Printf("%-6s  %-40s  %s\n", "id", "filename", "size")
			for _, e := range entries {
				fmt.Printf("%-6d  %-40s  %s\n", e.ID, e.Filename, humanize.Bytes(uint64(e.Size)))
			}
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export registry entries to a snapshot document",
		ArgsUsage: "<id> [<id>...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Value: ".", Usage: "destination directory"},
			&cli.StringFlag{Name: "name", Value: "hookstore-export", Usage: "base name for the snapshot file"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("usage: export <id> [<id>...]")
			}
			ids := make([]int, 0, c.NArg())
			for _, arg := range c.Args().Slice() {
				id, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("invalid file id %q", arg)
				}
				ids = append(ids, id)
			}

			fs, hist, err := newFileSystem()
			if err != nil {
				return err
			}
			defer closeHistory(hist)

			path, err := fs.Export(c.String("dir"), ids, c.String("name"))
			if err != nil {
				return err
			}
			fmt.Printf("exported to %s\n", path)
			return nil
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Merge an exported snapshot into the registry",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("usage: import <path>")
			}
			fs, hist, err := newFileSystem()
			if err != nil {
				return err
			}
			defer closeHistory(hist)

			count, err := fs.Import(c.Args().First())
			if err != nil {
				return err
			}
			fmt.Printf("imported %d records\n", count)
			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show past transfer operations",
		Action: func(c *cli.Context) error {
			hist, err := history.Open(config.Config.HistoryPath)
			if err != nil {
				return err
			}
			defer hist.Close()

			records, err := hist.ListTransfers()
			if err != nil {
				return err
			}
			fmt.Printf("%-20s  %-8s  %-6s  %-30s  %-10s  %s\n",
				"finished", "op", "id", "filename", "status", "size")
			for _, rec := range records {
				fmt.Printf("%-20s  %-8s  %-6d  %-30s  %-10s  %s\n",
					time.Unix(rec.FinishedAt, 0).Format("2006-01-02 15:04:05"),
					rec.Direction, rec.FileID, rec.FileName, rec.Status,
					humanize.Bytes(uint64(rec.Bytes)))
			}
			return nil
		},
	}
}

func closeHistory(hist *history.Store) {
	if hist != nil {
		hist.Close()
	}
}
