package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
)

// Principal is a resolved directory object (user or device). Fetched fresh
// per input row and discarded after use; nothing is cached across rows.
type Principal struct {
	ID            string
	PrincipalName string
	DisplayName   string
	Enabled       bool
}

// Relationship is one object associated with a principal: a group the
// principal belongs to, or a registered authentication method. For auth
// methods Name carries the raw type code.
type Relationship struct {
	ID   string
	Name string
	Kind string // "group" or "authMethod"
}

// ResultRow is one emitted audit result. MatchID is empty for the MFA
// variant, where MatchName holds the comma-joined method labels instead.
type ResultRow struct {
	Key         string
	PrincipalID string
	DisplayName string
	MatchName   string
	MatchID     string
	Enabled     bool
}

// runCounters accumulates per-batch totals. Processed and Errored move at
// most once per input row; Results moves once per emitted ResultRow and can
// exceed Processed. Single-writer only.
type runCounters struct {
	Processed int
	Errored   int
	Results   int
	Added     int
}

// directory is the remote lookup surface the batch loop depends on. The
// Graph-backed implementation lives in graph.go; tests substitute fakes.
type directory interface {
	ResolveUser(ctx context.Context, upn string) (Principal, error)
	ListGroupMemberships(ctx context.Context, principalID string) ([]Relationship, error)
	ListAuthMethods(ctx context.Context, principalID string) ([]Relationship, error)
	FindDeviceByName(ctx context.Context, displayName string) (Principal, error)
	AddGroupMember(ctx context.Context, groupID, objectID string) error
	Probe(ctx context.Context) error
}

// rowFunc handles one input row. It returns how many ResultRows it emitted.
// Any error is row-local: counted and skipped, never aborting the batch.
type rowFunc func(key string, rec map[string]string) (int, error)

// runBatch drives the sequential reconciliation loop: one row fully handled
// before the next begins. Rows with an empty key column and rows whose
// handler fails are counted as errors and skipped. Only a row-source read
// failure (a malformed file) is returned, since without parseable input
// there is nothing left to process.
func runBatch(src *rowSource, keyColumn string, progressEvery int, fn rowFunc) (runCounters, error) {
	var c runCounters
	for {
		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return c, fmt.Errorf("reading input row %d: %w", c.Processed+1, err)
		}
		c.Processed++

		key := strings.TrimSpace(rec[keyColumn])
		if key == "" {
			c.Errored++
			log.Printf("Warning: row %d has no value in column %q, skipping.", c.Processed, keyColumn)
		} else {
			emitted, err := fn(key, rec)
			if err != nil {
				c.Errored++
				log.Printf("Warning: %s: %v", key, err)
			} else {
				c.Results += emitted
			}
		}

		if progressEvery > 0 && c.Processed%progressEvery == 0 {
			log.Printf("Progress: %d records processed, %d errors, %d results.", c.Processed, c.Errored, c.Results)
		}
	}
	log.Printf("Done: %d records processed, %d errors, %d results.", c.Processed, c.Errored, c.Results)
	return c, nil
}

// containsFold reports whether s contains substr, case-insensitively.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
