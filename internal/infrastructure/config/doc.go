// Package config handles loading and validating WHEP gateway configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token, JWT secret) should be
//     set via environment variables
//   - Upstream credentials never live in this file; they belong to the token store
//
// Usage:
//
//	cfg, err := config.Load("configs/whepgw.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.UpdateInterval())
package config
