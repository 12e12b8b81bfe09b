package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compleo/internal/interfaces"
	"github.com/ternarybob/compleo/internal/models"
	"github.com/ternarybob/compleo/internal/services/matcher"
)

// Resolver produces a field plan for a page through three layers in strict
// order: the domain mapping cache, AI analysis, then pattern matching. The
// winning layer is recorded as the plan's source.
type Resolver struct {
	mappings    interfaces.MappingStorage
	analyzer    interfaces.FieldAnalyzer
	matcher     *matcher.Matcher
	maxCacheAge time.Duration // zero means cached plans never expire
	logger      arbor.ILogger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-domain write serialization
}

// New creates a resolver. The analyzer may be nil, in which case the AI layer
// is skipped entirely.
func New(mappings interfaces.MappingStorage, analyzer interfaces.FieldAnalyzer, maxCacheAge time.Duration, logger arbor.ILogger) *Resolver {
	return &Resolver{
		mappings:    mappings,
		analyzer:    analyzer,
		matcher:     matcher.New(),
		maxCacheAge: maxCacheAge,
		logger:      logger,
		locks:       make(map[string]*sync.Mutex),
	}
}

// Resolve builds a field plan for the domain. A fresh cached mapping wins
// outright; otherwise AI analysis runs over the form HTML, with its entries
// annotated from the pattern matcher; if AI is unavailable or returns nothing
// the pattern plan stands alone.
func (r *Resolver) Resolve(ctx context.Context, domain, formHTML string, fields []models.FieldDescriptor, availableKeys []string) (*models.FieldPlan, error) {
	if plan := r.cachedPlan(ctx, domain); plan != nil {
		r.logger.Info().
			Str("domain", domain).
			Int("entries", len(plan.Entries)).
			Msg("Using cached field plan")
		return plan, nil
	}

	patternPlan := r.matcher.BuildPlan(fields)

	if r.analyzer != nil {
		entries, err := r.analyzer.AnalyzeForm(ctx, formHTML, availableKeys)
		if err != nil {
			r.logger.Warn().Err(err).Str("domain", domain).Msg("AI analysis failed, falling back to pattern matching")
		} else if len(entries) > 0 {
			annotateFromPattern(entries, patternPlan.Entries)
			r.logger.Info().
				Str("domain", domain).
				Int("entries", len(entries)).
				Msg("Using AI field plan")
			return &models.FieldPlan{Entries: entries, Source: models.PlanSourceAI}, nil
		}
	}

	if patternPlan.Empty() {
		return nil, fmt.Errorf("no fields could be resolved for %s", domain)
	}

	r.logger.Info().
		Str("domain", domain).
		Int("entries", len(patternPlan.Entries)).
		Msg("Using pattern-matched field plan")
	return patternPlan, nil
}

// cachedPlan returns the domain's cached plan when present and fresh.
func (r *Resolver) cachedPlan(ctx context.Context, domain string) *models.FieldPlan {
	mapping, err := r.mappings.Get(ctx, domain)
	if err != nil {
		r.logger.Warn().Err(err).Str("domain", domain).Msg("Mapping cache read failed")
		return nil
	}
	if mapping == nil || len(mapping.Entries) == 0 {
		return nil
	}
	if r.maxCacheAge > 0 && time.Since(mapping.UpdatedAt) > r.maxCacheAge {
		r.logger.Debug().
			Str("domain", domain).
			Str("updated_at", mapping.UpdatedAt.Format(time.RFC3339)).
			Msg("Cached mapping is stale")
		return nil
	}
	return mapping.Plan()
}

// Learn merges a successful plan into the domain mapping. Writes for the same
// domain are serialized; the current mapping is re-read under the lock so
// concurrent learners never clobber each other. A single retry covers
// transient store errors.
func (r *Resolver) Learn(ctx context.Context, domain, url string, entries []models.FieldEntry) (int, error) {
	if len(entries) == 0 {
		return 0, fmt.Errorf("refusing to learn an empty plan for %s", domain)
	}

	lock := r.domainLock(domain)
	lock.Lock()
	defer lock.Unlock()

	version, err := r.mergeAndPut(ctx, domain, url, entries)
	if err != nil {
		r.logger.Warn().Err(err).Str("domain", domain).Msg("Mapping write failed, retrying once")
		version, err = r.mergeAndPut(ctx, domain, url, entries)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to learn mapping for %s: %w", domain, err)
	}

	r.logger.Info().
		Str("domain", domain).
		Int("version", version).
		Int("entries", len(entries)).
		Msg("Domain mapping learned")
	return version, nil
}

func (r *Resolver) mergeAndPut(ctx context.Context, domain, url string, entries []models.FieldEntry) (int, error) {
	existing, err := r.mappings.Get(ctx, domain)
	if err != nil {
		return 0, err
	}

	merged := entries
	if existing != nil {
		merged = models.MergeEntries(existing.Entries, entries)
	}
	return r.mappings.Put(ctx, domain, merged, url)
}

func (r *Resolver) domainLock(domain string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[domain]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[domain] = lock
	}
	return lock
}

// annotateFromPattern copies special-handler annotations the AI layer cannot
// produce (confirm-password, required/skip checkboxes) onto AI entries that
// share a selector with a pattern match.
func annotateFromPattern(aiEntries, patternEntries []models.FieldEntry) {
	bySelector := make(map[string]models.FieldEntry, len(patternEntries))
	for _, e := range patternEntries {
		bySelector[e.Selector] = e
	}
	for i := range aiEntries {
		p, ok := bySelector[aiEntries[i].Selector]
		if !ok {
			continue
		}
		aiEntries[i].ConfirmPassword = aiEntries[i].ConfirmPassword || p.ConfirmPassword
		aiEntries[i].RequiredCheck = aiEntries[i].RequiredCheck || p.RequiredCheck
		aiEntries[i].SkipCheck = aiEntries[i].SkipCheck || p.SkipCheck
	}
}
