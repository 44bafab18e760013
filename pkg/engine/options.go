package engine

import (
	"github.com/bastiangx/fieldserve/pkg/config"
	"github.com/bastiangx/fieldserve/pkg/lookup"
)

// OptionsFromConfig maps the engine and lookup sections of cfg onto Options.
func OptionsFromConfig(cfg *config.Config, src lookup.Source, fields []string) Options {
	return Options{
		Fields:         fields,
		BuiltinFields:  cfg.Engine.BuiltinFields,
		Source:         src,
		Debounce:       cfg.Engine.Debounce(),
		Limit:          cfg.Lookup.Limit,
		Timeout:        cfg.Lookup.Timeout(),
		FailureTTL:     cfg.Lookup.FailureTTL(),
		VocabularyTTL:  cfg.Lookup.VocabularyTTL(),
		MaxSuggestions: cfg.Engine.MaxSuggestions,
		MinPrefix:      cfg.Engine.MinPrefix,
		EscapeValues:   cfg.Engine.EscapeValues,
	}
}
