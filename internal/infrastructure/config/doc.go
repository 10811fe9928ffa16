// Package config handles loading and validating the monitor configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (N2KMON_*)
//   - Validation of required fields
//   - Default value handling
//
// Secrets (MQTT password, InfluxDB token) should be set through the
// environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/n2kmonitor.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.CANBus.FrameTopic)
package config
