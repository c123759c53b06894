package mqtt

import (
	"encoding/json"
	"time"
)

// Status states and reasons published on the system status topic.
const (
	StateOnline  = "online"
	StateOffline = "offline"

	ReasonShutdown = "graceful_shutdown"
	ReasonLost     = "unexpected_disconnect"
)

// Status is the retained presence message of an energysaving process.
type Status struct {
	Service  string    `json:"service"`
	ClientID string    `json:"client_id"`
	State    string    `json:"status"`
	Reason   string    `json:"reason,omitempty"`
	Time     time.Time `json:"timestamp"`
}

func newStatus(clientID, state, reason string) Status {
	return Status{
		Service:  "energysaving",
		ClientID: clientID,
		State:    state,
		Reason:   reason,
		Time:     time.Now().UTC().Truncate(time.Second),
	}
}

func (s Status) payload() ([]byte, error) {
	return json.Marshal(s)
}
