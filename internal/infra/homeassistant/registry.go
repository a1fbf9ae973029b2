package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"home-voice/config"
	"home-voice/internal/domain"
	"home-voice/internal/metrics"
)

// Policy is the registry's filter configuration, fixed at construction.
type Policy struct {
	AllowedDomains  []string
	AllowedEntities []string
	Exclusions      domain.ExclusionPolicy
	// SinglePass refreshes with one combined entity+exclusion call instead
	// of the two-phase exclusion-then-allow-list sequence.
	SinglePass bool
}

func PolicyFromConfig(cfg config.HomeAssistantConfig) Policy {
	return Policy{
		AllowedDomains:  cfg.AllowedDomains,
		AllowedEntities: cfg.AllowedEntities,
		Exclusions:      domain.ExclusionPolicy(cfg.ExclusionDict),
		SinglePass:      cfg.SinglePassFilter,
	}
}

// EntityFilter parameterises one FetchEntityMap call. An empty Mode means
// domain filtering.
type EntityFilter struct {
	Mode            domain.FilterMode
	AllowedEntities []string
	Exclusions      domain.ExclusionPolicy
}

// Registry owns the entity map and domain action catalog. Both maps are
// swapped wholesale under the lock; readers never see a partial refresh.
type Registry struct {
	exec   *Executor
	policy Policy
	logger *slog.Logger

	mu            sync.RWMutex
	domainActions domain.DomainActions
	entities      domain.EntityMap
	cache         domain.EntityMap
	location      *domain.Location
}

func NewRegistry(exec *Executor, policy Policy, logger *slog.Logger) *Registry {
	return &Registry{
		exec:          exec,
		policy:        policy,
		logger:        logger,
		domainActions: domain.DomainActions{},
		entities:      domain.EntityMap{},
	}
}

type serviceCatalogEntry struct {
	Domain   string                          `json:"domain"`
	Services map[string]domain.ServiceSchema `json:"services"`
}

type stateEntry struct {
	EntityID   string         `json:"entity_id"`
	Attributes map[string]any `json:"attributes"`
}

func (r *Registry) fetchCatalog(ctx context.Context) ([]serviceCatalogEntry, error) {
	resp, err := r.exec.Get(ctx, "/api/services")
	if err != nil {
		return nil, fmt.Errorf("fetching services: %w", err)
	}

	var catalog []serviceCatalogEntry
	if err := json.Unmarshal(resp.Body, &catalog); err != nil {
		return nil, fmt.Errorf("parsing services response: %w", err)
	}
	return catalog, nil
}

// FetchDomainActions reloads the domain to action catalog. A failure is
// returned as a value and leaves the previous catalog in place.
func (r *Registry) FetchDomainActions(ctx context.Context) (domain.DomainActions, error) {
	catalog, err := r.fetchCatalog(ctx)
	if err != nil {
		r.logger.Error("failed to fetch domain actions", "error", err)
		return nil, err
	}

	actions := make(domain.DomainActions, len(catalog))
	for _, item := range catalog {
		names := make([]string, 0, len(item.Services))
		for name := range item.Services {
			names = append(names, name)
		}
		slices.Sort(names)
		actions[item.Domain] = names
	}

	r.mu.Lock()
	r.domainActions = actions
	r.mu.Unlock()

	r.logger.Info("fetched domain actions", "domains", len(actions))
	return actions, nil
}

// FetchEntityMap rebuilds the entity map from /api/states and makes it the
// current map. On a fetch or parse failure the last good map (or an empty
// one) becomes current instead. The only error is an invalid filter mode.
func (r *Registry) FetchEntityMap(ctx context.Context, filter EntityFilter) (domain.EntityMap, error) {
	mode := filter.Mode
	if mode == "" {
		mode = domain.FilterDomain
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidFilterMode, mode)
	}

	resp, err := r.exec.Get(ctx, "/api/states")
	if err != nil {
		return r.degraded(fmt.Errorf("fetching states: %w", err)), nil
	}

	var states []stateEntry
	if err := json.Unmarshal(resp.Body, &states); err != nil {
		return r.degraded(fmt.Errorf("parsing states response: %w", err)), nil
	}

	r.mu.RLock()
	domainActions := r.domainActions
	r.mu.RUnlock()

	entities := make(domain.EntityMap)
	for _, st := range states {
		entityDomain, _, found := strings.Cut(st.EntityID, ".")
		if !found {
			r.logger.Debug("skipping malformed entity id", "entity_id", st.EntityID)
			continue
		}

		include, err := ShouldIncludeEntity(st.EntityID, entityDomain, mode, r.policy.AllowedDomains, filter.AllowedEntities)
		if err != nil {
			return nil, err
		}
		if !include {
			continue
		}

		friendly := st.EntityID
		if name, ok := st.Attributes["friendly_name"].(string); ok {
			friendly = name
		}
		friendly = strings.ToLower(friendly)

		if ShouldExcludeEntity(friendly, filter.Exclusions) {
			continue
		}

		actions := domainActions[entityDomain]
		if actions == nil {
			actions = []string{}
		}
		entities[friendly] = domain.Entity{EntityID: st.EntityID, Actions: actions}
	}

	r.mu.Lock()
	r.entities = entities
	r.cache = entities.Clone()
	r.mu.Unlock()

	metrics.RecordRefresh(metrics.OutcomeSuccess, len(entities))
	r.logger.Info("fetched entity map", "entities", len(entities), "mode", mode)
	return entities, nil
}

func (r *Registry) degraded(cause error) domain.EntityMap {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Error("failed to fetch entity map", "error", cause)

	if len(r.cache) > 0 {
		r.logger.Warn("using cached entity map", "entities", len(r.cache))
		r.entities = r.cache.Clone()
		metrics.RecordRefresh(metrics.OutcomeCached, len(r.entities))
		return r.entities
	}

	r.logger.Error("no cached entity map available")
	r.entities = domain.EntityMap{}
	metrics.RecordRefresh(metrics.OutcomeError, 0)
	return r.entities
}

// GetServiceInfo returns the schema for domain.action, or nil when the
// service is unknown or the catalog cannot be fetched.
func (r *Registry) GetServiceInfo(ctx context.Context, serviceDomain, action string) *domain.ServiceSchema {
	catalog, err := r.fetchCatalog(ctx)
	if err != nil {
		r.logger.Error("failed to get service info", "service", serviceDomain+"."+action, "error", err)
		return nil
	}

	for _, item := range catalog {
		if item.Domain != serviceDomain {
			continue
		}
		if schema, ok := item.Services[action]; ok {
			return &schema
		}
		return nil
	}
	return nil
}

// GetHomeLocation reads the home coordinates from /api/config and remembers
// them for HomeLocation.
func (r *Registry) GetHomeLocation(ctx context.Context) (domain.Location, error) {
	resp, err := r.exec.Get(ctx, "/api/config")
	if err != nil {
		return domain.Location{}, fmt.Errorf("fetching home location: %w", err)
	}

	var cfg struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.Unmarshal(resp.Body, &cfg); err != nil {
		return domain.Location{}, fmt.Errorf("parsing config response: %w", err)
	}
	if cfg.Latitude == nil || cfg.Longitude == nil {
		return domain.Location{}, ErrLocationUnavailable
	}

	loc := domain.Location{Latitude: *cfg.Latitude, Longitude: *cfg.Longitude}

	r.mu.Lock()
	r.location = &loc
	r.mu.Unlock()

	r.logger.Info("retrieved home location", "latitude", loc.Latitude, "longitude", loc.Longitude)
	return loc, nil
}

// HomeLocation returns the coordinates from the last successful
// GetHomeLocation.
func (r *Registry) HomeLocation() (domain.Location, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.location == nil {
		return domain.Location{}, false
	}
	return *r.location, true
}

// Refresh reloads the domain catalog and then the entity map. By default it
// keeps the historical two-phase sequence: an exclusion-only pass followed
// by an allow-list pass whose result replaces the first.
func (r *Registry) Refresh(ctx context.Context) error {
	if _, err := r.FetchDomainActions(ctx); err != nil {
		r.logger.Warn("continuing refresh without domain actions", "error", err)
	}

	if r.policy.SinglePass {
		_, err := r.FetchEntityMap(ctx, EntityFilter{
			Mode:            domain.FilterEntity,
			AllowedEntities: r.policy.AllowedEntities,
			Exclusions:      r.policy.Exclusions,
		})
		return err
	}

	if _, err := r.FetchEntityMap(ctx, EntityFilter{Exclusions: r.policy.Exclusions}); err != nil {
		return err
	}
	entities, err := r.FetchEntityMap(ctx, EntityFilter{
		Mode:            domain.FilterEntity,
		AllowedEntities: r.policy.AllowedEntities,
	})
	if err != nil {
		return err
	}

	r.logger.Info("entity map loaded", "entities", len(entities))
	return nil
}

// StartPeriodicRefresh runs Refresh on a cron schedule until ctx is done.
// An empty schedule disables it.
func (r *Registry) StartPeriodicRefresh(ctx context.Context, schedule string) error {
	if schedule == "" {
		return nil
	}

	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc(schedule, func() {
		if err := r.Refresh(ctx); err != nil {
			r.logger.Error("periodic refresh failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("parsing refresh schedule %q: %w", schedule, err)
	}

	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()

	r.logger.Info("periodic entity refresh scheduled", "schedule", schedule)
	return nil
}

// Lookup finds an entity in the current map by lower-cased friendly name.
func (r *Registry) Lookup(name string) (domain.Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entities[name]
	return e, ok
}

// EntityMap returns the current map. Callers must treat it as read-only.
func (r *Registry) EntityMap() domain.EntityMap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entities
}

func (r *Registry) DomainActions() domain.DomainActions {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.domainActions
}
