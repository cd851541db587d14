package main

import (
	"fmt"
	"log/slog"

	"github.com/Brownie44l1/plant-disease-api/internal/classifier"
	"github.com/Brownie44l1/plant-disease-api/internal/config"
	"github.com/Brownie44l1/plant-disease-api/internal/model"
	"github.com/Brownie44l1/plant-disease-api/internal/treatment"
)

func loadAdvisor(cfg config.Config) (*treatment.Advisor, error) {
	cat, err := treatment.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return treatment.NewAdvisor(cat, cfg.Severity)
}

// openClassifier loads the configured model. A model that fails to load
// yields an adapter in the unavailable state rather than an error; only
// unreadable metadata is fatal.
func openClassifier(cfg config.Config, labels []string) (*classifier.Adapter, error) {
	runner, meta, err := model.Open(cfg.ModelOptions(), labels)
	if err != nil && len(meta.Classes) == 0 {
		return nil, fmt.Errorf("load model metadata: %w", err)
	}
	if missing := missingLabels(meta.Classes, labels); len(missing) > 0 {
		slog.Warn("model classes missing from treatment catalog, their predictions will fail",
			"classes", missing)
	}

	var adapter *classifier.Adapter
	switch {
	case err != nil:
		slog.Warn("model not loaded, predictions will be unavailable",
			"backend", cfg.Model.Backend,
			"path", cfg.Model.Path,
			"error", err)
		adapter = classifier.Unavailable(meta, err)
	case runner == nil:
		slog.Warn("no model backend configured, predictions will be unavailable")
		adapter = classifier.Unavailable(meta, nil)
	default:
		slog.Info("model loaded", "backend", cfg.Model.Backend, "classes", len(meta.Classes), "layout", meta.Layout)
		adapter = classifier.New(runner, meta)
	}
	adapter.LimitPixels(cfg.Model.MaxImagePixels)
	return adapter, nil
}

// missingLabels returns the model classes that have no catalog record.
func missingLabels(classes, catalog []string) []string {
	known := make(map[string]struct{}, len(catalog))
	for _, l := range catalog {
		known[l] = struct{}{}
	}
	var missing []string
	for _, c := range classes {
		if _, ok := known[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}
