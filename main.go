package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

func chunkSizeFlag() cli.Flag {
	return &cli.Int64Flag{
		Name:    "chunk-size",
		Usage:   "The maximum number of bytes in each chunk",
		Value:   DefaultChunkSize,
		EnvVars: []string{"DEPSPLIT_CHUNK_SIZE"},
	}
}

func recordFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:    "record",
		Usage:   "Write a .split record so merges can verify the chunk set",
		EnvVars: []string{"DEPSPLIT_RECORD"},
	}
}

func bufferSizeFlag() cli.Flag {
	return &cli.Int64Flag{
		Name:    "buffer-size",
		Usage:   "The number of bytes read at a time while merging chunks",
		Value:   DefaultMergeBufferSize,
		EnvVars: []string{"DEPSPLIT_BUFFER_SIZE"},
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "depsplit"
	app.Usage = "Split archives under a hosting size cap, and fetch and reassemble them from a dependency manifest"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "s3-region",
			Usage:   "Region used for s3:// URLs",
			Value:   DefaultS3Region,
			EnvVars: []string{"DEPSPLIT_S3_REGION", "AWS_REGION"},
		},
		&cli.StringFlag{
			Name:    "s3-endpoint",
			Usage:   "Custom S3 endpoint (path-style), for S3 compatible stores",
			EnvVars: []string{"DEPSPLIT_S3_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:    "pprof-addr",
			Usage:   "Serve pprof on this address while running",
			EnvVars: []string{"DEPSPLIT_PPROF_ADDR"},
		},
	}
	app.Before = func(c *cli.Context) error {
		if addr := c.String("pprof-addr"); addr != "" {
			p := &http.Server{
				Addr:              addr,
				Handler:           http.DefaultServeMux,
				ReadHeaderTimeout: 5 * time.Second,
				MaxHeaderBytes:    1 << 20,
			}
			go p.ListenAndServe()
		}
		return nil
	}
	app.Commands = []*cli.Command{
		{
			Name:      "split",
			Usage:     "Split a file into <file>0, <file>1, ... chunks",
			ArgsUsage: "<file> [chunk-size-bytes]",
			Flags:     []cli.Flag{chunkSizeFlag(), recordFlag()},
			Action:    splitAction,
		},
		{
			Name:      "merge",
			Usage:     "Merge the chunks in a directory and extract the resulting zip file",
			ArgsUsage: "<directory>",
			Flags:     []cli.Flag{bufferSizeFlag()},
			Action:    mergeAction,
		},
		{
			Name:      "sync",
			Usage:     "Download, merge and extract every dependency listed in a manifest",
			ArgsUsage: "<manifest-url> [destination-dir]",
			Flags: []cli.Flag{
				bufferSizeFlag(),
				&cli.StringFlag{
					Name:    "dest",
					Usage:   "Destination root directory",
					Value:   DefaultDestRoot,
					EnvVars: []string{"DEPSPLIT_DEST"},
				},
				&cli.Int64Flag{
					Name:    "rate-limit",
					Usage:   "Download bandwidth cap in bytes per second (0 for none)",
					EnvVars: []string{"DEPSPLIT_RATE_LIMIT"},
				},
				&cli.BoolFlag{
					Name:  "dry-run",
					Usage: "List the dependencies that would be fetched and exit",
				},
			},
			Action: syncAction,
		},
		{
			Name:      "publish",
			Usage:     "Split a file straight into an S3 bucket and print its manifest section",
			ArgsUsage: "<file> <s3://bucket/prefix>",
			Flags: []cli.Flag{
				chunkSizeFlag(),
				recordFlag(),
				&cli.StringFlag{
					Name:  "folder",
					Usage: "Folder name of the printed manifest section (defaults to the file name without extension)",
				},
			},
			Action: publishAction,
		},
	}
	return app
}

// configFromContext builds a Config from whichever flags the command defines.
func configFromContext(c *cli.Context) Config {
	cfg := DefaultConfig()
	if c.IsSet("chunk-size") {
		cfg.ChunkSize = c.Int64("chunk-size")
	}
	if c.IsSet("buffer-size") {
		cfg.MergeBufferSize = c.Int64("buffer-size")
	}
	if c.IsSet("dest") {
		cfg.DestRoot = c.String("dest")
	}
	cfg.WriteRecord = c.Bool("record")
	cfg.RateLimit = c.Int64("rate-limit")
	cfg.S3Region = c.String("s3-region")
	cfg.S3Endpoint = c.String("s3-endpoint")
	return cfg
}

// reportOrFail prints errors that only describe a bad input and lets the process
// end normally; everything else is returned as fatal.
func reportOrFail(err error) error {
	if err != nil && reportable(err) {
		log.Printf("%v", err)
		return nil
	}
	return err
}

func splitAction(c *cli.Context) error {
	if c.NArg() < 1 {
		log.Printf("Missing file argument.")
		return nil
	}
	cfg := configFromContext(c)
	if c.NArg() > 1 {
		size, err := strconv.ParseInt(c.Args().Get(1), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid chunk size %q: %w", c.Args().Get(1), err)
		}
		cfg.ChunkSize = size
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	res, err := SplitFile(c.Args().First(), cfg)
	if err != nil {
		return reportOrFail(err)
	}
	log.Printf("Wrote %v chunks (%v bytes)", len(res.Chunks), res.Size)
	return nil
}

func mergeAction(c *cli.Context) error {
	if c.NArg() < 1 {
		log.Printf("Missing directory argument.")
		return nil
	}
	cfg := configFromContext(c)
	if err := cfg.Validate(); err != nil {
		return err
	}
	_, err := MergeDir(c.Args().First(), cfg)
	return reportOrFail(err)
}

func syncAction(c *cli.Context) error {
	if c.NArg() < 1 {
		log.Printf("Missing manifest argument.")
		return nil
	}
	cfg := configFromContext(c)
	if c.NArg() > 1 {
		cfg.DestRoot = c.Args().Get(1)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log.Printf("Dependency directory is '%v'", cfg.DestRoot)
	fetcher := NewFetcher(cfg)
	manifestURL := c.Args().First()

	if c.Bool("dry-run") {
		pending, err := Plan(c.Context, fetcher, manifestURL, cfg)
		if err != nil {
			return err
		}
		for _, sec := range pending {
			log.Printf("Would fetch %v: %v", sec.Folder, strings.Join(sec.URLs, " "))
		}
		return nil
	}
	res, err := Sync(c.Context, fetcher, manifestURL, cfg)
	if err != nil {
		return err
	}
	log.Printf("Synced %v dependencies, skipped %v", len(res.Synced), len(res.Skipped))
	return nil
}

func publishAction(c *cli.Context) error {
	if c.NArg() < 2 {
		log.Printf("Missing file or target argument.")
		return nil
	}
	cfg := configFromContext(c)
	if err := cfg.Validate(); err != nil {
		return err
	}
	file := c.Args().Get(0)
	folder := c.String("folder")
	if folder == "" {
		folder = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}
	svc, err := newS3Client(cfg.S3Region, cfg.S3Endpoint)
	if err != nil {
		return err
	}
	urls, err := Publish(c.Context, svc, file, c.Args().Get(1), cfg)
	if err != nil {
		return reportOrFail(err)
	}
	fmt.Fprint(c.App.Writer, manifestSection(folder, urls))
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatalf("%v", err)
	}
	log.Printf("Done")
}
