// Package factory is the registry behind every pluggable component of the
// service: prediction backends, history logs and metrics sinks. A component is
// described in configuration by a type name and a raw settings map; the
// registered factory decodes the map into its own typed struct.
//
//	reg := factory.NewRegistry[prediction.Model]()
//	_ = reg.Register("table", func(conf map[string]any) (prediction.Model, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return prediction.LoadTable(c.Path)
//	})
//	m, err := reg.Create(factory.ModuleConfig{Type: "table"})
package factory
