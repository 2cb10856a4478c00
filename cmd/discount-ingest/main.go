package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	minCodeLen    = 4
	maxCodeLen    = 32
	maxFeeds      = 64
	copyBatch     = 10_000
)

type options struct {
	dataDir       string
	databaseURL   string
	minFeeds      int
	expectedCodes uint
	template      coupon.Rule
}

// feedResult holds the codes of one feed that other feeds may also list.
type feedResult struct {
	candidates map[string]uint64
}

func main() {
	var (
		opts        options
		kind        string
		value       string
		minOrder    string
		maxDiscount string
	)

	flag.StringVar(&opts.dataDir, "data-dir", "data", "directory containing partner feeds (*.gz, one code per line)")
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&opts.minFeeds, "min-feeds", 2, "number of feeds that must list a code before it is accepted")
	flag.UintVar(&opts.expectedCodes, "expected-codes", 10_000_000, "expected codes per feed, sizes the bloom filters")
	flag.StringVar(&kind, "kind", string(coupon.KindPercentage), "discount kind: percentage or fixed")
	flag.StringVar(&value, "value", "10", "discount value")
	flag.StringVar(&minOrder, "min-order", "0", "minimum order amount")
	flag.StringVar(&maxDiscount, "max-discount", "0", "cap for percentage discounts, 0 for none")
	flag.IntVar(&opts.template.MaxUses, "max-uses", 1, "uses per code, 0 for unlimited")
	flag.StringVar(&opts.template.Description, "description", "Partner promo code", "description shown to shoppers")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	if err := opts.parseTemplate(kind, value, minOrder, maxDiscount); err != nil {
		slog.Error("invalid discount template", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("discount ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("discount ingest completed successfully")
}

func (o *options) parseTemplate(kind, value, minOrder, maxDiscount string) error {
	switch k := coupon.Kind(kind); k {
	case coupon.KindPercentage, coupon.KindFixed:
		o.template.Kind = k
	default:
		return errors.Errorf("unknown kind %q", kind)
	}
	var err error
	if o.template.Value, err = decimal.NewFromString(value); err != nil {
		return errors.Wrap(err, "value")
	}
	if o.template.MinOrderAmount, err = decimal.NewFromString(minOrder); err != nil {
		return errors.Wrap(err, "min-order")
	}
	if o.template.MaxDiscount, err = decimal.NewFromString(maxDiscount); err != nil {
		return errors.Wrap(err, "max-discount")
	}
	if o.template.Value.IsNegative() || o.template.MinOrderAmount.IsNegative() || o.template.MaxDiscount.IsNegative() {
		return errors.New("amounts must be non-negative")
	}
	if o.template.Kind == coupon.KindPercentage && o.template.Value.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("percentage above 100")
	}
	if o.template.MaxUses < 0 {
		return errors.New("max-uses must be non-negative")
	}
	o.template.Active = true
	return nil
}

func run(ctx context.Context, opts options) error {
	files, err := filepath.Glob(filepath.Join(opts.dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list feeds")
	}
	sort.Strings(files)
	switch {
	case len(files) == 0:
		return errors.Errorf("no feeds in %s", opts.dataDir)
	case len(files) > maxFeeds:
		return errors.Errorf("at most %d feeds supported, got %d", maxFeeds, len(files))
	case opts.minFeeds < 1 || opts.minFeeds > len(files):
		return errors.Errorf("min-feeds must be between 1 and %d", len(files))
	}

	// Pass 1: Build bloom filters concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("feeds", len(files)))

	filters, err := buildBloomFilters(ctx, files, opts.expectedCodes)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: Keep codes listed by enough feeds.
	slog.Info("pass 2: finding accepted codes", slog.Int("min_feeds", opts.minFeeds))

	codes, err := findAcceptedCodes(ctx, files, filters, opts.minFeeds)
	if err != nil {
		return errors.Wrap(err, "find accepted codes")
	}

	slog.Info("accepted codes found", slog.Int("count", len(codes)))

	if len(codes) == 0 {
		slog.Info("no codes to insert")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := postgres.NewCouponRepository(pool)

	fresh, err := dropExisting(ctx, repo, codes)
	if err != nil {
		return errors.Wrap(err, "filter existing codes")
	}

	if err := writeCoupons(ctx, repo, fresh, opts.template); err != nil {
		return errors.Wrap(err, "write coupons to database")
	}

	return nil
}

// normalizeCode returns the stored form of a feed line, or "" when the line
// is not a usable code.
func normalizeCode(line string) string {
	code := coupon.Normalize(line)
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return ""
	}
	for _, c := range code {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return code
}

// buildBloomFilters creates one bloom filter per feed, concurrently.
func buildBloomFilters(ctx context.Context, files []string, expected uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(buildFilterForFeed(ctx, i, f, expected, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFeed(ctx context.Context, idx int, path string, expected uint, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(expected, bloomFPR)
		var count uint64

		if err := streamGzFile(ctx, path, func(line string) {
			code := normalizeCode(line)
			if code == "" {
				return
			}
			filter.AddString(code)
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 1 progress", slog.String("feed", filepath.Base(path)), slog.Uint64("codes", count))
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for %s", path)
		}

		slog.Info("pass 1 complete", slog.String("feed", filepath.Base(path)), slog.Uint64("total_codes", count))

		filters[idx] = filter
		return nil
	}
}

// findAcceptedCodes re-streams each feed and records, per code, the feeds
// that list it. With minFeeds above one a code is only tracked once another
// feed's filter reports it, which keeps the candidate maps small.
func findAcceptedCodes(ctx context.Context, files []string, filters []*bloom.BloomFilter, minFeeds int) ([]string, error) {
	results := make([]feedResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(findCandidatesInFeed(ctx, i, f, filters, minFeeds, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint64)
	for _, r := range results {
		for code, mask := range r.candidates {
			merged[code] |= mask
		}
	}

	var accepted []string
	for code, mask := range merged {
		if bits.OnesCount64(mask) >= minFeeds {
			accepted = append(accepted, code)
		}
	}
	sort.Strings(accepted)

	return accepted, nil
}

func findCandidatesInFeed(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	minFeeds int,
	results []feedResult,
) func() error {
	return func() error {
		candidates := make(map[string]uint64)
		feedBit := uint64(1) << uint(idx)

		if err := streamGzFile(ctx, path, func(line string) {
			code := normalizeCode(line)
			if code == "" {
				return
			}
			if minFeeds == 1 {
				candidates[code] |= feedBit
				return
			}
			for j, f := range filters {
				if j != idx && f.TestString(code) {
					candidates[code] |= feedBit
					return
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "scan %s for candidates", path)
		}

		slog.Info("pass 2 complete", slog.String("feed", filepath.Base(path)), slog.Int("candidates", len(candidates)))

		results[idx] = feedResult{candidates: candidates}
		return nil
	}
}

// dropExisting removes codes already stored. Existing codes are loaded into a
// bloom filter; only its hits are confirmed with a lookup.
func dropExisting(ctx context.Context, repo *postgres.CouponRepository, codes []string) ([]string, error) {
	existing := bloom.NewWithEstimates(uint(len(codes))+1, bloomFPR)
	var stored int
	if err := repo.AllCodes(ctx, func(code string) {
		existing.AddString(code)
		stored++
	}); err != nil {
		return nil, err
	}
	if stored == 0 {
		return codes, nil
	}

	fresh := codes[:0:0]
	var skipped int
	for _, code := range codes {
		if existing.TestString(code) {
			_, err := repo.FindByCode(ctx, code)
			switch {
			case err == nil:
				skipped++
				continue
			case !errors.Is(err, coupon.ErrInvalidCoupon):
				return nil, err
			}
		}
		fresh = append(fresh, code)
	}

	slog.Info("existing codes skipped", slog.Int("skipped", skipped), slog.Int("remaining", len(fresh)))
	return fresh, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// writeCoupons bulk-loads codes in batches sharing one template rule.
func writeCoupons(ctx context.Context, repo *postgres.CouponRepository, codes []string, tmpl coupon.Rule) error {
	slog.Info("writing coupons to database", slog.Int("count", len(codes)))

	var written int64
	for start := 0; start < len(codes); start += copyBatch {
		end := min(start+copyBatch, len(codes))
		n, err := repo.CopyCodes(ctx, codes[start:end], tmpl)
		if err != nil {
			return errors.Wrapf(err, "copy batch at %d", start)
		}
		written += n
		slog.Info("write progress", slog.Int64("written", written), slog.Int("total", len(codes)))
	}

	return nil
}
