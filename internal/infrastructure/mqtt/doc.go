// Package mqtt connects the gateway to an MQTT broker.
//
// The broker is optional. When enabled, the gateway publishes session and
// registry events under {prefix}/events/..., announces its own availability
// on {prefix}/status (with a Last Will so crashes are visible), and listens
// on {prefix}/command/refresh for on-demand registry refreshes.
//
// # Security Considerations
//
//   - Enable TLS (mqtt.broker.tls) whenever the broker is not on localhost
//   - Broker ACLs should restrict who may publish to the command topic
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix)
//	err = client.Publish(topics.Event("session.created"), payload, 1, false)
package mqtt
