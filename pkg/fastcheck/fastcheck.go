// Package fastcheck remembers which changelogs were fully applied so that an
// update can skip taking the migration lock when there is nothing to do.
package fastcheck

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/filter"
	"github.com/pseudomuto/changekeeper/pkg/history"
	"github.com/pseudomuto/changekeeper/pkg/iterator"
	"github.com/pseudomuto/changekeeper/pkg/selector"
	"github.com/pseudomuto/changekeeper/pkg/visitor"
)

// ErrIncompatibleChecksums is returned by Unrun when history holds checksums
// from an older algorithm. Only a full update upgrades them.
var ErrIncompatibleChecksums = errors.New("stored checksums were computed by an older algorithm")

type (
	// Request describes one check.
	Request struct {
		DB        database.Database
		History   history.Service
		ChangeLog *changelog.DatabaseChangeLog
		Contexts  selector.Contexts
		Labels    *selector.Expression
	}

	// Service caches up-to-date answers per database, changelog and runtime
	// selection. Only positive answers are cached. A check that fails is
	// reported as not up to date and drops any cached entry, so the caller
	// falls back to a full update.
	//
	// Example usage:
	//
	//	fc := fastcheck.New()
	//	if fc.IsUpToDate(ctx, req) {
	//		return nil // nothing to run, no lock needed
	//	}
	Service struct {
		mu    sync.Mutex
		cache map[string]bool
	}
)

// New returns an empty Service.
func New() *Service {
	return &Service{cache: make(map[string]bool)}
}

// IsUpToDate reports whether no changeset of the request's changelog is
// pending.
func (s *Service) IsUpToDate(ctx context.Context, req Request) bool {
	key := Key(req)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache[key] {
		return true
	}

	unrun, err := Unrun(ctx, req)
	if err != nil {
		if errors.Is(err, ErrIncompatibleChecksums) {
			slog.InfoContext(ctx, "Stored checksums need upgrading, running a full update")
		} else {
			slog.WarnContext(ctx, "Fast check failed, running a full update", "error", err)
		}

		delete(s.cache, key)
		return false
	}

	if len(unrun) > 0 {
		delete(s.cache, key)
		return false
	}

	s.cache[key] = true
	return true
}

// Clear drops every cached answer.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.cache)
}

// Key identifies the cache entry for req.
func Key(req Request) string {
	return strings.Join([]string{
		req.Contexts.String(),
		req.Labels.String(),
		req.DB.DefaultCatalogName(),
		req.DB.DefaultSchemaName(),
		req.DB.ConnectionURL(),
		req.ChangeLog.FilePath(),
	}, "|")
}

// Unrun lists the changesets an update would run. The history service's
// cache is reset afterwards since another process may change history at any
// time.
func Unrun(ctx context.Context, req Request) ([]*changelog.ChangeSet, error) {
	defer req.History.Reset()

	ran, err := req.History.RanChangeSets(ctx)
	if err != nil {
		return nil, err
	}

	if !history.ChecksumsCompatible(ran) {
		return nil, ErrIncompatibleChecksums
	}

	list := visitor.NewList()
	it := iterator.New(iterator.Config{
		ChangeLog: req.ChangeLog,
		Filters:   filter.Pending(req.DB.ShortName(), ran, req.Contexts, req.Labels),
		Database:  req.DB.ShortName(),
	})

	if err := it.Run(ctx, list); err != nil {
		return nil, err
	}

	return list.ChangeSets(), nil
}
