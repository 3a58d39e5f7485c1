// Package matcher resolves a raw template to the enrolled subject whose
// stored digest equals the template's digest.
package matcher

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"lectureattend/internal/apperrors"
	"lectureattend/internal/metrics"
	"lectureattend/internal/model"
	"lectureattend/internal/vault"
)

// minChunk keeps small pools on a single goroutine.
const minChunk = 256

// Engine scans a pool of enrolled subjects.
type Engine struct {
	parallelism int
}

// NewEngine creates an engine that splits large pools across up to
// parallelism goroutines. Values below 1 mean a sequential scan.
func NewEngine(parallelism int) *Engine {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Engine{parallelism: parallelism}
}

// Identify returns the single subject in pool whose digest matches template.
// The digest is computed once. Subjects without a digest never match. More
// than one match yields ErrAmbiguousMatch.
func (e *Engine) Identify(ctx context.Context, template string, pool []model.Subject) (model.Subject, error) {
	start := time.Now()
	defer func() { metrics.MatchDuration.Observe(time.Since(start).Seconds()) }()

	if template == "" {
		return model.Subject{}, apperrors.ErrNoMatch
	}
	digest := vault.DigestOf(template)

	var matches []int
	workers := e.parallelism
	if n := len(pool) / minChunk; n < workers {
		workers = n
	}
	if workers <= 1 {
		matches = scan(pool, 0, len(pool), digest)
	} else {
		var err error
		matches, err = e.scanParallel(ctx, pool, digest, workers)
		if err != nil {
			return model.Subject{}, err
		}
	}

	switch len(matches) {
	case 0:
		return model.Subject{}, apperrors.ErrNoMatch
	case 1:
		return pool[matches[0]], nil
	default:
		return model.Subject{}, apperrors.ErrAmbiguousMatch
	}
}

func (e *Engine) scanParallel(ctx context.Context, pool []model.Subject, digest string, workers int) ([]int, error) {
	chunk := (len(pool) + workers - 1) / workers
	found := make([][]int, workers)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(pool) {
			hi = len(pool)
		}
		if lo >= hi {
			continue
		}
		w := w
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			found[w] = scan(pool, lo, hi, digest)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []int
	for _, f := range found {
		out = append(out, f...)
	}
	return out, nil
}

func scan(pool []model.Subject, lo, hi int, digest string) []int {
	var out []int
	for i := lo; i < hi; i++ {
		s := pool[i]
		if !s.Enrolled() {
			continue
		}
		if vault.Equal(*s.TemplateDigest, digest) {
			out = append(out, i)
		}
	}
	return out
}
