// Package mqtt provides MQTT client connectivity for SmartChill services.
//
// This package manages:
//   - Connection to the fleet broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for service liveness
//   - The SmartChill topic grammar and its parsers
//
// # Architecture
//
// SmartChill uses MQTT as the fleet bus connecting refrigeration devices,
// the control services and the notifier. The broker decouples producers
// from consumers; the Registry is the only HTTP surface.
//
//	Devices → Broker → Control Services → Broker (alerts) → Notifier
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, "doortimer")
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDoorEvents(), 2,
//	    func(topic string, payload []byte) error {
//	        return handleDoorEvent(topic, payload)
//	    })
package mqtt
