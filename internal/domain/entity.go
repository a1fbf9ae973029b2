package domain

import (
	"errors"
	"slices"
	"strings"
)

var ErrInvalidFilterMode = errors.New("domain: invalid filter mode")

// Entity is a controllable Home Assistant device as seen by the dispatcher.
type Entity struct {
	EntityID string   `json:"entity_id"`
	Actions  []string `json:"actions"`
}

// Domain returns the part of the entity id before the first dot.
func (e Entity) Domain() string {
	return EntityDomain(e.EntityID)
}

func (e Entity) Supports(action string) bool {
	return slices.Contains(e.Actions, action)
}

// EntityDomain splits an entity id such as "light.kitchen" on its first dot.
func EntityDomain(entityID string) string {
	d, _, _ := strings.Cut(entityID, ".")
	return d
}

// EntityMap is keyed by lower-cased friendly name.
type EntityMap map[string]Entity

// Clone returns a shallow copy; Entity values are never mutated in place.
func (m EntityMap) Clone() EntityMap {
	out := make(EntityMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// DomainActions maps a domain to the services Home Assistant exposes for it.
type DomainActions map[string][]string

type FilterMode string

const (
	FilterDomain FilterMode = "domain"
	FilterEntity FilterMode = "entity"
	FilterNone   FilterMode = "none"
)

func (m FilterMode) Valid() bool {
	switch m {
	case FilterDomain, FilterEntity, FilterNone:
		return true
	}
	return false
}

// ExclusionPolicy maps a label to a substring; any entity whose friendly name
// contains one of the substrings is dropped.
type ExclusionPolicy map[string]string

// ServiceSchema is the description Home Assistant returns for a service.
type ServiceSchema struct {
	Name        string                  `json:"name,omitempty"`
	Description string                  `json:"description,omitempty"`
	Fields      map[string]ServiceField `json:"fields,omitempty"`
}

type ServiceField struct {
	Required    bool           `json:"required,omitempty"`
	Description string         `json:"description,omitempty"`
	Example     any            `json:"example,omitempty"`
	Selector    map[string]any `json:"selector,omitempty"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
