package prediction

import (
	"fmt"

	"github.com/kilianp07/parkcast/core/factory"
)

var modelRegistry = factory.NewRegistry[Model]()

func init() {
	_ = RegisterModel("table", func(conf map[string]any) (Model, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			return DefaultTable(), nil
		}
		return LoadTable(c.Path)
	})
	_ = RegisterModel("classifier", func(conf map[string]any) (Model, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			return nil, fmt.Errorf("%w: classifier requires conf.path", ErrModelUnavailable)
		}
		return LoadForest(c.Path)
	})
}

// RegisterModel adds a model backend factory identified by name.
func RegisterModel(name string, f factory.Factory[Model]) error {
	return modelRegistry.Register(name, f)
}

// NewModel builds the backend described by cfg. An empty type selects the
// built-in table.
func NewModel(cfg factory.ModuleConfig) (Model, error) {
	if cfg.Type == "" {
		cfg.Type = "table"
	}
	m, err := modelRegistry.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("prediction model %q: %w", cfg.Type, err)
	}
	return m, nil
}
