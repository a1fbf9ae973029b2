package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// HomeAssistantSettings is the entity filter portion of a settings document.
type HomeAssistantSettings struct {
	AllowedDomains  []string
	ExclusionDict   map[string]string
	AllowedEntities []string
}

// DefaultHomeAssistantSettings returns the fallback used when no settings
// document can be read.
func DefaultHomeAssistantSettings() HomeAssistantSettings {
	return HomeAssistantSettings{
		AllowedDomains:  append([]string(nil), DefaultAllowedDomains...),
		ExclusionDict:   map[string]string{},
		AllowedEntities: []string{},
	}
}

type settingsDocument struct {
	HomeAssistant struct {
		AllowedDomains *struct {
			Value []string `yaml:"value"`
		} `yaml:"allowed_domains"`
		ExclusionDict *struct {
			Value map[string]string `yaml:"value"`
		} `yaml:"exclusion_dict"`
		AllowedEntities *struct {
			Value []string `yaml:"value"`
		} `yaml:"allowed_entities"`
	} `yaml:"home_assistant"`
}

// LoadHomeAssistantSettings reads the filter lists from a settings document
// (JSON, which yaml.v3 also accepts). On any read or parse failure the
// defaults are returned together with the error, so callers can log and go on.
func LoadHomeAssistantSettings(path string) (HomeAssistantSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultHomeAssistantSettings(), fmt.Errorf("reading settings file: %w", err)
	}

	var doc settingsDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return DefaultHomeAssistantSettings(), fmt.Errorf("parsing settings: %w", err)
	}

	settings := DefaultHomeAssistantSettings()
	ha := doc.HomeAssistant
	if ha.AllowedDomains != nil && ha.AllowedDomains.Value != nil {
		settings.AllowedDomains = ha.AllowedDomains.Value
	}
	if ha.ExclusionDict != nil && ha.ExclusionDict.Value != nil {
		settings.ExclusionDict = ha.ExclusionDict.Value
	}
	if ha.AllowedEntities != nil && ha.AllowedEntities.Value != nil {
		settings.AllowedEntities = ha.AllowedEntities.Value
	}

	return settings, nil
}

// Apply copies the settings into the Home Assistant section.
func (s HomeAssistantSettings) Apply(h *HomeAssistantConfig) {
	h.AllowedDomains = s.AllowedDomains
	h.ExclusionDict = s.ExclusionDict
	h.AllowedEntities = s.AllowedEntities
}
