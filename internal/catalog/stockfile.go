package catalog

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart/internal/domain/stock"
)

// ShardPattern matches the gzip stock shard files inside a stock directory.
const ShardPattern = "stock-*.csv.gz"

// FileSource reads initial stock from gzip-compressed CSV shards of
// "productId,quantity" lines. Shards are read concurrently and quantities
// for the same product are summed. Blank lines and lines starting with '#'
// are ignored.
type FileSource struct {
	dir string
}

// NewFileSource returns a FileSource over dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

// Name identifies the source in logs.
func (s *FileSource) Name() string { return "file:" + s.dir }

var _ stock.Source = (*FileSource)(nil)

// Load reads every shard. It fails when the directory has no shards.
func (s *FileSource) Load(ctx context.Context) (map[string]int64, error) {
	if s.dir == "" {
		return nil, errors.New("stock directory not configured")
	}
	files, err := filepath.Glob(filepath.Join(s.dir, ShardPattern))
	if err != nil {
		return nil, errors.Wrap(err, "glob stock shards")
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no %s files in %s", ShardPattern, s.dir)
	}
	sort.Strings(files)

	var (
		mu     sync.Mutex
		totals = make(map[string]int64)
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, f := range files {
		g.Go(func() error {
			shard, err := readShard(ctx, f)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for id, qty := range shard {
				totals[id] += qty
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return totals, nil
}

func readShard(ctx context.Context, path string) (map[string]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	out := make(map[string]int64)
	scanner := bufio.NewScanner(gz)
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		id, qtyText, ok := strings.Cut(text, ",")
		if !ok {
			return nil, errors.Errorf("%s:%d: expected productId,quantity", path, line)
		}
		qty, err := strconv.ParseInt(strings.TrimSpace(qtyText), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d: parse quantity", path, line)
		}
		out[strings.TrimSpace(id)] += qty
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan %s", path)
	}
	return out, nil
}
