package runner

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/palomar-labs/entity-research-pipeline/internal/extract"
	"github.com/palomar-labs/entity-research-pipeline/internal/search"
	"golang.org/x/time/rate"
)

type Options struct {
	// QueryTemplate builds the search query from an entity; every
	// "{entity}" occurrence is replaced with the entity value.
	QueryTemplate string

	MaxRetries     int
	RequestTimeout time.Duration

	// SearchDelay and ExtractDelay set the minimum spacing between
	// successive provider calls. Set to <=0 to disable.
	SearchDelay  time.Duration
	ExtractDelay time.Duration

	// BackoffInitial is the initial sleep before retrying a transient failure.
	BackoffInitial time.Duration
	// BackoffMax caps exponential backoff.
	BackoffMax time.Duration
	// BackoffJitterFrac applies +/- jitter to backoff sleeps (0.2 = +/-20%).
	BackoffJitterFrac float64

	// Progress, when set, is invoked exactly once per entity after it
	// reaches a terminal state, with done counting 1..total.
	Progress func(done, total int)
}

// Output is the terminal state of one entity.
type Output struct {
	Entity     string
	Records    []search.Record
	Extracted  string
	SearchErr  error
	ExtractErr error
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.QueryTemplate) == "" {
		o.QueryTemplate = "{entity}"
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = 200 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 2 * time.Second
	}
	if o.BackoffJitterFrac <= 0 {
		o.BackoffJitterFrac = 0.2
	}
	return o
}

// ResearchAll processes entities strictly in input order, one at a time:
// search, then extract, with no overlapping in-flight requests. Each
// provider failure is recorded on its entity; the run only fails on
// context cancellation.
func ResearchAll(ctx context.Context, entities []string, searcher search.Searcher, extractor extract.Extractor, opts Options) ([]Output, error) {
	opts = opts.withDefaults()

	var searchLimiter, extractLimiter *rate.Limiter
	if opts.SearchDelay > 0 {
		searchLimiter = rate.NewLimiter(rate.Every(opts.SearchDelay), 1)
	}
	if opts.ExtractDelay > 0 {
		extractLimiter = rate.NewLimiter(rate.Every(opts.ExtractDelay), 1)
	}

	out := make([]Output, len(entities))
	total := len(entities)
	for i, raw := range entities {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = researchOne(ctx, raw, searcher, extractor, searchLimiter, extractLimiter, opts)
		if opts.Progress != nil {
			opts.Progress(i+1, total)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func researchOne(
	ctx context.Context,
	raw string,
	searcher search.Searcher,
	extractor extract.Extractor,
	searchLimiter, extractLimiter *rate.Limiter,
	opts Options,
) Output {
	entity := strings.TrimSpace(raw)
	if entity == "" {
		return Output{Entity: "", SearchErr: errors.New("empty entity")}
	}

	query := strings.ReplaceAll(opts.QueryTemplate, "{entity}", entity)
	records, err := callWithRetry(ctx, searchLimiter, opts, func(ctx context.Context) ([]search.Record, error) {
		return searcher.Search(ctx, query)
	})
	if err != nil {
		return Output{Entity: entity, SearchErr: err}
	}

	// Nothing to extract without search text.
	extracted, err := callWithRetry(ctx, extractLimiter, opts, func(ctx context.Context) (string, error) {
		return extractor.Extract(ctx, search.FormatRecords(records))
	})
	if err != nil {
		return Output{Entity: entity, Records: records, ExtractErr: err}
	}

	return Output{Entity: entity, Records: records, Extracted: extracted}
}

func callWithRetry[T any](ctx context.Context, limiter *rate.Limiter, opts Options, fn func(ctx context.Context) (T, error)) (T, error) {
	var lastRes T
	var lastErr error
	attempts := 1 + opts.MaxRetries
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return lastRes, err
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return lastRes, err
			}
		}

		reqCtx := ctx
		var cancel context.CancelFunc
		if opts.RequestTimeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, opts.RequestTimeout)
		}
		res, err := fn(reqCtx)
		lastRes = res
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return res, nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return lastRes, ctx.Err()
		}
		lastErr = err
		if !isTransient(err) || attempt == attempts-1 {
			return lastRes, err
		}

		sleep := backoffSleep(opts.BackoffInitial, opts.BackoffMax, opts.BackoffJitterFrac, attempt)
		t := time.NewTimer(sleep)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return lastRes, ctx.Err()
		}
	}
	return lastRes, lastErr
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var se *search.TransientError
	if errors.As(err, &se) {
		return true
	}
	var ee *extract.TransientError
	if errors.As(err, &ee) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout() || ne.Temporary()
	}
	return false
}

func backoffSleep(initial, max time.Duration, jitterFrac float64, attempt int) time.Duration {
	sleep := initial
	for i := 0; i < attempt && sleep < max; i++ {
		sleep *= 2
		if sleep > max {
			sleep = max
			break
		}
	}
	if jitterFrac <= 0 {
		return sleep
	}
	// Apply +/- jitterFrac.
	j := 1 + (rand.Float64()*2-1)*jitterFrac
	return time.Duration(float64(sleep) * j)
}
