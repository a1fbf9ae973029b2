package homeassistant

import (
	"fmt"
	"slices"
	"strings"

	"home-voice/internal/domain"
)

// ValidateActionForEntity reports whether the entity's domain exposes action.
func ValidateActionForEntity(action string, entity domain.Entity) (bool, string) {
	if !entity.Supports(action) {
		return false, fmt.Sprintf("Action '%s' not supported for this entity", action)
	}
	return true, ""
}

// ValidateRequiredFields lists the schema's required fields missing from
// data. Presence is what counts, so false or 0 satisfy a field. entity_id is
// always supplied by the dispatcher and never reported. A nil schema is valid.
func ValidateRequiredFields(schema *domain.ServiceSchema, data map[string]any) (bool, []string) {
	missing := []string{}
	if schema == nil {
		return true, missing
	}

	for name, field := range schema.Fields {
		if name == "entity_id" || !field.Required {
			continue
		}
		if _, ok := data[name]; !ok {
			missing = append(missing, name)
		}
	}
	slices.Sort(missing)

	return len(missing) == 0, missing
}

// ShouldIncludeEntity applies the inclusion filter for one entity.
func ShouldIncludeEntity(entityID, entityDomain string, mode domain.FilterMode, allowedDomains, allowedEntities []string) (bool, error) {
	switch mode {
	case domain.FilterDomain:
		return slices.Contains(allowedDomains, entityDomain), nil
	case domain.FilterEntity:
		return slices.Contains(allowedEntities, entityID), nil
	case domain.FilterNone:
		return true, nil
	default:
		return false, fmt.Errorf("%w: %q", domain.ErrInvalidFilterMode, mode)
	}
}

// ShouldExcludeEntity reports whether the friendly name contains any of the
// exclusion substrings, ignoring case.
func ShouldExcludeEntity(friendlyName string, exclusions domain.ExclusionPolicy) bool {
	name := strings.ToLower(friendlyName)
	for _, sub := range exclusions {
		if strings.Contains(name, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

func formatFieldList(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = "'" + f + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
