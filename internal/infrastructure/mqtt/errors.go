package mqtt

import "errors"

var (
	ErrNotConnected      = errors.New("mqtt: not connected")
	ErrConnectionFailed  = errors.New("mqtt: connection failed")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrPayloadTooLarge is returned for a payload over 1 MiB.
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")

	// ErrInvalidQoS is returned for a QoS above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level")

	// ErrInvalidTopic is returned for an empty topic or one outside the
	// telemetry hierarchy.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)
