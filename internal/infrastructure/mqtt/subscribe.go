package mqtt

import (
	"fmt"
	"sort"
)

// Subscribe routes messages matching topic (which may hold + and #
// wildcards) to handler. The route is remembered and restored after a
// reconnect; a failed subscribe leaves no route behind.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	case !c.IsConnected():
		return ErrNotConnected
	}

	c.mu.Lock()
	c.handlers[topic] = route{qos: qos, handler: handler}
	c.mu.Unlock()

	if err := wait(c.client.Subscribe(topic, qos, c.wrapHandler(handler)), defaultPublishTimeout); err != nil {
		c.forget(topic)
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}

// Unsubscribe drops the route for topic. Messages already in flight may
// still be delivered.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.forget(topic)
	if err := wait(c.client.Unsubscribe(topic), defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, topic, err)
	}
	return nil
}

// Subscriptions returns the routed topic filters, sorted.
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	topics := make([]string, 0, len(c.handlers))
	for topic := range c.handlers {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

func (c *Client) forget(topic string) {
	c.mu.Lock()
	delete(c.handlers, topic)
	c.mu.Unlock()
}
