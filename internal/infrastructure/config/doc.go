// Package config handles loading and validating WeMo gateway configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (WEMOGW_ prefix)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The channel auth key, MQTT password and InfluxDB token should be set
//     via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Gateway.Port)
package config
