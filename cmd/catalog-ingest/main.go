package main

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/caja/internal/domain/catalog"
	"github.com/xenking/caja/internal/storage/postgres"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	batchSize     = 1000
	progressEvery = 100_000
)

// fileResult holds the materials parsed from one file.
type fileResult struct {
	path      string
	materials []catalog.Material
	// repeats approximates the codes listed more than once in the file.
	repeats int
}

func main() {
	var (
		pattern     string
		databaseURL string
		dryRun      bool
	)

	flag.StringVar(&pattern, "files", "data/materiales*.csv.gz", "glob of gzip compressed material CSV files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "parse and merge the files without writing")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, pattern, databaseURL, dryRun); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, pattern, databaseURL string, dryRun bool) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrapf(err, "glob %s", pattern)
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %s", pattern)
	}
	sort.Strings(files)

	slog.Info("parsing material files", slog.Int("files", len(files)))

	results, err := parseFiles(ctx, files)
	if err != nil {
		return errors.Wrap(err, "parse files")
	}

	materials, overridden := merge(results)
	slog.Info("materials merged",
		slog.Int("count", len(materials)),
		slog.Int("overridden", overridden),
	)

	if dryRun || len(materials) == 0 {
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return writeMaterials(ctx, postgres.New(pool), materials)
}

// parseFiles parses every file concurrently.
func parseFiles(ctx context.Context, files []string) ([]fileResult, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			r, err := parseFile(ctx, f)
			if err != nil {
				return errors.Wrapf(err, "file %s", f)
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func parseFile(ctx context.Context, path string) (fileResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return fileResult{}, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return fileResult{}, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	res := fileResult{path: path}
	if err := readMaterials(ctx, gz, func(m catalog.Material) {
		if filter.TestAndAddString(m.Code) {
			res.repeats++
		}
		res.materials = append(res.materials, m)
		if len(res.materials)%progressEvery == 0 {
			slog.Info("parse progress", slog.String("file", path), slog.Int("materials", len(res.materials)))
		}
	}); err != nil {
		return fileResult{}, err
	}

	slog.Info("file parsed",
		slog.String("file", path),
		slog.Int("materials", len(res.materials)),
		slog.Int("repeats", res.repeats),
	)
	return res, nil
}

// readMaterials reads code,description,category,unit,price records. A
// header row is skipped.
func readMaterials(ctx context.Context, r io.Reader, fn func(m catalog.Material)) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 5
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true

	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		if line == 1 && strings.EqualFold(rec[0], "code") {
			continue
		}
		m, err := parseRecord(rec)
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		fn(m)
	}
}

func parseRecord(rec []string) (catalog.Material, error) {
	code := strings.TrimSpace(rec[0])
	if code == "" {
		return catalog.Material{}, errors.New("empty material code")
	}
	price, err := decimal.NewFromString(strings.TrimSpace(rec[4]))
	if err != nil {
		return catalog.Material{}, errors.Wrapf(err, "price of %s", code)
	}
	if price.IsNegative() {
		return catalog.Material{}, errors.Errorf("negative price for %s", code)
	}
	return catalog.Material{
		Code:        code,
		Description: strings.TrimSpace(rec[1]),
		Category:    strings.TrimSpace(rec[2]),
		Unit:        strings.TrimSpace(rec[3]),
		Price:       price,
		Active:      true,
	}, nil
}

// merge combines the files in order: a later row replaces an earlier row
// with the same code. It returns the materials ordered by code and the
// number of replaced rows.
func merge(results []fileResult) ([]catalog.Material, int) {
	byCode := make(map[string]int)
	var (
		out        []catalog.Material
		overridden int
	)
	for _, r := range results {
		for _, m := range r.materials {
			if j, ok := byCode[m.Code]; ok {
				out[j] = m
				overridden++
				continue
			}
			byCode[m.Code] = len(out)
			out = append(out, m)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Code < out[b].Code })
	return out, overridden
}

func writeMaterials(ctx context.Context, store catalog.Writer, materials []catalog.Material) error {
	slog.Info("writing materials to database", slog.Int("count", len(materials)))

	written := 0
	for start := 0; start < len(materials); start += batchSize {
		end := min(start+batchSize, len(materials))
		n, err := store.UpsertMaterials(ctx, materials[start:end])
		if err != nil {
			return errors.Wrapf(err, "upsert materials %d-%d", start, end)
		}
		written += n
		slog.Info("write progress", slog.Int("written", written), slog.Int("total", len(materials)))
	}

	return nil
}
