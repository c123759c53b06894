package mqtt

import "fmt"

// maxPayloadSize caps outgoing messages at 1 MiB.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits for the broker to acknowledge
// it (QoS 1 and 2) or for the write to complete (QoS 0).
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(payload), maxPayloadSize)
	case !c.IsConnected():
		return ErrNotConnected
	}

	if err := wait(c.client.Publish(topic, qos, retained, payload), defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// PublishRetained publishes a retained message at the configured QoS. The
// ingest bridge uses it for its state topic.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}
