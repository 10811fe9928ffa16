// Package mqtt provides MQTT client connectivity for the NMEA 2000 monitor.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// CAN gateways publish assembled frames to the broker; the monitor consumes
// them and publishes registry events and device snapshots back.
//
//	CAN gateway → MQTT Broker → n2kmonitor → MQTT Broker → dashboards
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllFrames(), 1,
//	    func(topic string, payload []byte) error {
//	        return nil
//	    })
//
// Credentials belong in N2KMON_MQTT_USERNAME and N2KMON_MQTT_PASSWORD rather
// than the configuration file.
package mqtt
