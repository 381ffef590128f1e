// Package ingest builds the raw layer from the published source tables:
// races, constructors, and constructor_results. Sources are named by a YAML
// manifest, acquired concurrently into a scratch dir, and left-joined into
// one observation per (race, constructor).
package ingest

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/paddock-labs/tracker-cli/internal/fetcher"
	"github.com/paddock-labs/tracker-cli/internal/lake"
	"github.com/paddock-labs/tracker-cli/internal/model"
)

// naSentinel is the published tables' NA marker; cells carrying it are
// treated as empty.
const naSentinel = `\N`

// Source table names, also used as scratch file stems.
const (
	tableRaces              = "races"
	tableConstructors       = "constructors"
	tableConstructorResults = "constructor_results"
)

// requiredColumns maps each source table to the columns the join needs.
// Published tables usually carry more; columns are located by name.
var requiredColumns = map[string][]string{
	tableRaces:              {"raceId", "date"},
	tableConstructors:       {"constructorId", "name"},
	tableConstructorResults: {"raceId", "constructorId", "points"},
}

// Options configures a raw-layer build.
type Options struct {
	Manifest    string // path to the sources manifest
	WorkDir     string // scratch dir for downloads and extractions
	Concurrency int    // parallel source downloads, default 3
}

// Ingestor builds the raw layer from the three source tables.
type Ingestor struct {
	lake *lake.Lake
	http fetcher.Fetcher
	ftp  fetcher.Fetcher
	opts Options
}

// New creates an Ingestor writing into lk.
func New(lk *lake.Lake, opts Options) *Ingestor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	if opts.WorkDir == "" {
		opts.WorkDir = filepath.Join(os.TempDir(), "tracker-ingest")
	}
	return &Ingestor{
		lake: lk,
		http: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{RateLimiters: fetcher.DefaultRateLimiters()}),
		ftp:  fetcher.NewFTPFetcher(fetcher.FTPOptions{}),
		opts: opts,
	}
}

// BuildRaw acquires the source tables per the manifest, joins them, and
// writes the raw layer. Returns the number of raw rows written.
func (ing *Ingestor) BuildRaw(ctx context.Context) (int, error) {
	manifest, err := LoadManifest(ing.opts.Manifest)
	if err != nil {
		return 0, err
	}

	local, err := ing.acquire(ctx, manifest)
	if err != nil {
		return 0, err
	}

	races, err := ing.readTable(ctx, local[tableRaces], manifest.Races, tableRaces)
	if err != nil {
		return 0, err
	}
	constructors, err := ing.readTable(ctx, local[tableConstructors], manifest.Constructors, tableConstructors)
	if err != nil {
		return 0, err
	}
	results, err := ing.readTable(ctx, local[tableConstructorResults], manifest.ConstructorResults, tableConstructorResults)
	if err != nil {
		return 0, err
	}

	records, err := join(races, constructors, results)
	if err != nil {
		return 0, err
	}

	if err := ing.lake.WriteRaw(records); err != nil {
		return 0, err
	}

	zap.L().Info("raw layer built",
		zap.Int("races", len(races)),
		zap.Int("constructors", len(constructors)),
		zap.Int("rows", len(records)),
		zap.String("path", ing.lake.RawPath()))
	return len(records), nil
}

// acquire resolves every source to a local file. Remote sources download
// concurrently into the work dir; bare local paths are used in place.
func (ing *Ingestor) acquire(ctx context.Context, m *Manifest) (map[string]string, error) {
	if err := os.MkdirAll(ing.opts.WorkDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "ingest: create work dir")
	}

	sources := map[string]Source{
		tableRaces:              m.Races,
		tableConstructors:       m.Constructors,
		tableConstructorResults: m.ConstructorResults,
	}

	local := make(map[string]string, len(sources))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.opts.Concurrency)
	for table, src := range sources {
		g.Go(func() error {
			path, err := ing.fetchSource(gctx, table, src)
			if err != nil {
				return err
			}
			mu.Lock()
			local[table] = path
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return local, nil
}

func (ing *Ingestor) fetchSource(ctx context.Context, table string, src Source) (string, error) {
	path, err := ing.localize(ctx, table, src)
	if err != nil {
		return "", err
	}
	if src.ZipMember != "" || strings.EqualFold(filepath.Ext(path), ".zip") {
		return ing.unzip(table, path, src.ZipMember)
	}
	return path, nil
}

// localize downloads a remote source into the work dir; anything without a
// recognized scheme is treated as a local path.
func (ing *Ingestor) localize(ctx context.Context, table string, src Source) (string, error) {
	u, err := url.Parse(src.URL)
	if err != nil || u.Scheme == "" {
		if _, statErr := os.Stat(src.URL); statErr != nil {
			return "", eris.Wrapf(statErr, "ingest: local source %s", table)
		}
		return src.URL, nil
	}

	var f fetcher.Fetcher
	switch u.Scheme {
	case "http", "https":
		f = ing.http
	case "ftp":
		f = ing.ftp
	default:
		return "", eris.Errorf("ingest: unsupported url scheme %q for %s", u.Scheme, table)
	}

	dest := filepath.Join(ing.opts.WorkDir, table+scratchExt(u.Path, src))
	start := time.Now()
	n, err := f.DownloadToFile(ctx, src.URL, dest)
	if err != nil {
		return "", eris.Wrapf(err, "ingest: download %s", table)
	}
	zap.L().Info("source downloaded",
		zap.String("table", table),
		zap.String("url", src.URL),
		zap.Int64("bytes", n),
		zap.Duration("took", time.Since(start)))
	return dest, nil
}

// scratchExt keeps the remote extension on the scratch file so ZIP detection
// still works after download.
func scratchExt(remotePath string, src Source) string {
	if ext := filepath.Ext(remotePath); ext != "" {
		return ext
	}
	if src.Format == FormatXLSX {
		return ".xlsx"
	}
	return ".csv"
}

func (ing *Ingestor) unzip(table, zipPath, member string) (string, error) {
	destDir := filepath.Join(ing.opts.WorkDir, table)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "ingest: create extraction dir")
	}
	if member != "" {
		path, err := fetcher.ExtractZIPMember(zipPath, member, destDir)
		return path, eris.Wrapf(err, "ingest: extract %s", table)
	}
	path, err := fetcher.ExtractZIPSingle(zipPath, destDir)
	return path, eris.Wrapf(err, "ingest: extract %s", table)
}

// readTable reads one source table and projects it onto the table's required
// columns, in requiredColumns order, with the NA sentinel blanked.
func (ing *Ingestor) readTable(ctx context.Context, path string, src Source, table string) ([][]string, error) {
	var (
		header []string
		rows   [][]string
		err    error
	)
	if src.Format == FormatXLSX {
		header, rows, err = readXLSXTable(path, src)
	} else {
		header, rows, err = readCSVTable(ctx, path, src)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", table)
	}
	if header == nil {
		return nil, eris.Wrapf(model.ErrSchema, "ingest: source %s (%s) is empty", table, path)
	}

	want := requiredColumns[table]
	idx, err := columnIndex(table, header, want)
	if err != nil {
		return nil, err
	}

	projected := make([][]string, 0, len(rows))
	for rn, row := range rows {
		out := make([]string, len(want))
		for i, col := range want {
			j := idx[i]
			if j >= len(row) {
				return nil, eris.Wrapf(model.ErrSchema,
					"ingest: source %s row %d has %d cells, column %q needs index %d",
					table, rn+1, len(row), col, j)
			}
			cell := row[j]
			if cell == naSentinel {
				cell = ""
			}
			out[i] = cell
		}
		projected = append(projected, out)
	}
	return projected, nil
}

// columnIndex locates each wanted column in the header by name. Order is not
// assumed and extra columns are ignored.
func columnIndex(table string, header, want []string) ([]int, error) {
	pos := make(map[string]int, len(header))
	for i, name := range header {
		pos[strings.TrimSpace(name)] = i
	}
	idx := make([]int, len(want))
	for i, col := range want {
		j, ok := pos[col]
		if !ok {
			return nil, eris.Wrapf(model.ErrSchema, "ingest: source %s is missing column %q (header %v)", table, col, header)
		}
		idx[i] = j
	}
	return idx, nil
}

func readCSVTable(ctx context.Context, path string, src Source) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "open source")
	}
	defer f.Close() //nolint:errcheck

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		Charset:   src.Charset,
	})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, nil, err
	}

	select {
	case header := <-headerCh:
		return header, rows, nil
	default:
		// Empty file: no header row was ever produced.
		return nil, nil, nil
	}
}

func readXLSXTable(path string, src Source) ([]string, [][]string, error) {
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: src.Sheet})
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}
	return rows[0], rows[1:], nil
}

// join left-joins constructor_results to races and constructors. A missing
// join partner leaves an empty race_date or constructor_name; the cleaner
// counts those later. Output keeps the results table's row order.
func join(races, constructors, results [][]string) ([]model.RawPointRecord, error) {
	raceDates := make(map[int64]string, len(races))
	for _, row := range races {
		id, err := parseSourceID(tableRaces, "raceId", row[0])
		if err != nil {
			return nil, err
		}
		raceDates[id] = row[1]
	}

	names := make(map[int64]string, len(constructors))
	for _, row := range constructors {
		id, err := parseSourceID(tableConstructors, "constructorId", row[0])
		if err != nil {
			return nil, err
		}
		names[id] = row[1]
	}

	records := make([]model.RawPointRecord, 0, len(results))
	seen := make(map[model.RecordKey]struct{}, len(results))
	for _, row := range results {
		raceID, err := parseSourceID(tableConstructorResults, "raceId", row[0])
		if err != nil {
			return nil, err
		}
		constructorID, err := parseSourceID(tableConstructorResults, "constructorId", row[1])
		if err != nil {
			return nil, err
		}

		rec := model.RawPointRecord{
			RaceID:          raceID,
			RaceDate:        raceDates[raceID],
			ConstructorID:   constructorID,
			ConstructorName: names[constructorID],
			Points:          row[2],
		}
		key := rec.Key()
		if _, dup := seen[key]; dup {
			return nil, eris.Wrapf(model.ErrIntegrity, "ingest: joined output repeats key %s", key)
		}
		seen[key] = struct{}{}
		records = append(records, rec)
	}
	return records, nil
}

func parseSourceID(table, column, text string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return 0, eris.Wrapf(model.ErrParse, "ingest: source %s column %s: %q is not an integer id", table, column, text)
	}
	return id, nil
}
