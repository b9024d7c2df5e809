// Package pathresolve resolves the dotted paths used by a workflow's
// declarative map entries (spec.md §4.4 "FromStep{step, path}",
// "FromInit{step, path}", "FromContext{path}") against arbitrary
// any-typed data. It is a thin, timeout-bounded wrapper around
// itchyny/gojq, grounded on the jq executor used for data transforms in
// the retrieved conductor workflow engine.
package pathresolve

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/itchyny/gojq"
)

// DefaultTimeout bounds how long a single path resolution may run,
// guarding against pathological queries stalling step scheduling.
const DefaultTimeout = 500 * time.Millisecond

// ErrNotFound is returned when path does not address any value in data
// (spec.md §4.4 "missing field" edge case).
var ErrNotFound = fmt.Errorf("pathresolve: path did not resolve to a value")

// toJQQuery turns a dotted path such as "items.0.name" into the
// equivalent jq query ".items[0].name". A leading "." in path is
// accepted and stripped; an empty path resolves to the identity query.
func toJQQuery(path string) string {
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "."
	}
	var b strings.Builder
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			continue
		}
		if _, err := strconv.Atoi(seg); err == nil {
			b.WriteByte('[')
			b.WriteString(seg)
			b.WriteByte(']')
			continue
		}
		b.WriteByte('.')
		b.WriteString(seg)
	}
	q := b.String()
	if q == "" {
		return "."
	}
	return q
}

// ResolvePath evaluates path against data and returns the single value
// it addresses. A path made of dotted field names and numeric array
// indices (e.g. "results.0.total") is compiled into a jq query and run
// with gojq; compile errors and evaluation errors are both returned
// wrapped, and an empty result set or a null result (which is what gojq
// yields for a missing field) maps to ErrNotFound.
func ResolvePath(ctx context.Context, data any, path string) (any, error) {
	query, err := gojq.Parse(toJQQuery(path))
	if err != nil {
		return nil, fmt.Errorf("pathresolve: parsing path %q: %w", path, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("pathresolve: compiling path %q: %w", path, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	type result struct {
		v   any
		err error
	}
	resultCh := make(chan result, 1)

	go func() {
		iter := code.Run(data)
		v, ok := iter.Next()
		if !ok {
			resultCh <- result{nil, ErrNotFound}
			return
		}
		if err, isErr := v.(error); isErr {
			resultCh <- result{nil, fmt.Errorf("pathresolve: evaluating path %q: %w", path, err)}
			return
		}
		if v == nil {
			// gojq yields null, not an empty result, for a missing field.
			resultCh <- result{nil, ErrNotFound}
			return
		}
		resultCh <- result{v, nil}
	}()

	select {
	case r := <-resultCh:
		return r.v, r.err
	case <-runCtx.Done():
		return nil, fmt.Errorf("pathresolve: resolving path %q: %w", path, runCtx.Err())
	}
}
