// Package influxdb records NMEA 2000 bus telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, non-blocking batched writes and health checks.
//
// # Measurements
//
//   - device_events: one point per registry event (created, rebound, updated),
//     tagged by kind and NAME
//   - bus_stats: periodic bridge and registry counters
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry is optional
//	}
//	defer client.Close()
//
//	client.WriteDeviceEvent(influxdb.DeviceEvent{Kind: "created", Name: name, Address: 5})
//
// Write errors are delivered asynchronously through SetOnError.
package influxdb
