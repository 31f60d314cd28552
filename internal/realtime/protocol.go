package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/five82/pulse/internal/analytics"
)

// Phoenix channel events used by the realtime service.
const (
	eventJoin      = "phx_join"
	eventReply     = "phx_reply"
	eventLeave     = "phx_leave"
	eventClose     = "phx_close"
	eventError     = "phx_error"
	eventHeartbeat = "heartbeat"
	eventChanges   = "postgres_changes"
	eventSystem    = "system"

	phoenixTopic = "phoenix"
	topicPrefix  = "realtime:"
	protocolVsn  = "1.0.0"
)

// outbound is a frame written to the socket.
type outbound struct {
	Topic   string `json:"topic"`
	Event   string `json:"event"`
	Payload any    `json:"payload"`
	Ref     string `json:"ref"`
	JoinRef string `json:"join_ref,omitempty"`
}

// inbound is a frame read from the socket. Ref is null for pushes.
type inbound struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type reply struct {
	status string
	reason string
}

func decodeReply(raw json.RawMessage) reply {
	var p replyPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return reply{status: "error", reason: fmt.Sprintf("decode reply: %v", err)}
	}
	r := reply{status: p.Status}
	if p.Status != "ok" && len(p.Response) > 0 {
		var resp struct {
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal(p.Response, &resp); err == nil {
			r.reason = resp.Reason
		}
		if r.reason == "" {
			r.reason = string(p.Response)
		}
	}
	return r
}

// Binding selects one stream of Postgres changes for a channel.
type Binding struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

type joinConfig struct {
	Broadcast struct {
		Self bool `json:"self"`
		Ack  bool `json:"ack"`
	} `json:"broadcast"`
	Presence struct {
		Key string `json:"key"`
	} `json:"presence"`
	PostgresChanges []Binding `json:"postgres_changes"`
	Private         bool      `json:"private"`
}

type joinPayload struct {
	Config      joinConfig `json:"config"`
	AccessToken string     `json:"access_token,omitempty"`
}

// Change is one Postgres mutation delivered on a channel.
type Change struct {
	Schema          string
	Table           string
	EventType       string
	CommitTimestamp string
	New             analytics.Record
	Old             analytics.Record
}

type changesPayload struct {
	IDs  []json.Number `json:"ids"`
	Data struct {
		Schema          string           `json:"schema"`
		Table           string           `json:"table"`
		Type            string           `json:"type"`
		EventType       string           `json:"eventType"`
		CommitTimestamp string           `json:"commit_timestamp"`
		Record          analytics.Record `json:"record"`
		OldRecord       analytics.Record `json:"old_record"`
		New             analytics.Record `json:"new"`
		Old             analytics.Record `json:"old"`
	} `json:"data"`
}

func decodeChange(raw json.RawMessage) (Change, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var p changesPayload
	if err := dec.Decode(&p); err != nil {
		return Change{}, fmt.Errorf("decode postgres_changes: %w", err)
	}
	c := Change{
		Schema:          p.Data.Schema,
		Table:           p.Data.Table,
		EventType:       p.Data.Type,
		CommitTimestamp: p.Data.CommitTimestamp,
		New:             p.Data.Record,
		Old:             p.Data.OldRecord,
	}
	if c.EventType == "" {
		c.EventType = p.Data.EventType
	}
	if c.New == nil {
		c.New = p.Data.New
	}
	if c.Old == nil {
		c.Old = p.Data.Old
	}
	if c.Table == "" {
		return Change{}, fmt.Errorf("decode postgres_changes: missing table")
	}
	return c, nil
}

type systemPayload struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Extension string `json:"extension"`
}
