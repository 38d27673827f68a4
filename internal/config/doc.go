// Package config provides configuration types and loading for recordflow.
//
// This package defines the configuration model (business rules, HTTP
// server, observability and error sinks), YAML loading with environment
// variable substitution, validation, and file watching for hot-reload of
// the rule set.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("recordflow.yaml")
//	if err != nil {
//	    return err
//	}
//	if err := config.ValidateConfig(cfg); err != nil {
//	    return err
//	}
//
// # File Watching
//
//	watcher, err := config.NewWatcher(path, func(cfg *config.RecordflowConfig) {
//	    transformer.UpdateRules(&cfg.Spec.Transformer)
//	}, config.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	err = watcher.Start(ctx)
package config
