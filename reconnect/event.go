package reconnect

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/liftcord/liftcord/eventbus"
)

// DefaultTopic is the bus topic session events are published on.
const DefaultTopic = "liftcord.reconnect"

// Kind names the step an Event reports.
type Kind string

const (
	KindDialing      Kind = "dialing"
	KindConnected    Kind = "connected"
	KindDisconnected Kind = "disconnected"
	KindBackoff      Kind = "backoff"
	KindStopped      Kind = "stopped"
)

// Event reports one step of a session's life.
type Event struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"session_id"`
	SessionKey string        `json:"key"`
	Kind       Kind          `json:"kind"`
	Attempt    int           `json:"attempt"`
	Exponent   int           `json:"exponent,omitempty"`
	Delay      time.Duration `json:"delay,omitempty"`
	Error      string        `json:"error,omitempty"`
	Time       time.Time     `json:"time"`
}

var _ eventbus.Message = Event{}

// Key routes all events of one session through the same bus worker.
func (e Event) Key() string { return e.SessionKey }

func (e Event) Serialize() ([]byte, error) { return json.Marshal(e) }
