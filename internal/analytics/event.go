package analytics

import (
	"fmt"
	"strings"
)

// Topic names the change feed an event arrived on.
type Topic int

const (
	TopicEngagement Topic = iota
	TopicSession
	TopicNews
)

func (t Topic) String() string {
	switch t {
	case TopicEngagement:
		return "engagement"
	case TopicSession:
		return "session"
	case TopicNews:
		return "news"
	default:
		return fmt.Sprintf("topic(%d)", int(t))
	}
}

// Collection returns the snapshot collection a topic feeds.
func (t Topic) Collection() Collection {
	switch t {
	case TopicSession:
		return CollectionBehavior
	case TopicNews:
		return CollectionHealth
	default:
		return CollectionEngagement
	}
}

// Operation is the kind of backend mutation carried by a ChangeEvent.
type Operation int

const (
	OpInsert Operation = iota
	OpUpdate
)

func (o Operation) String() string {
	if o == OpUpdate {
		return "UPDATE"
	}
	return "INSERT"
}

// ParseOperation maps a change feed eventType onto an Operation. Deletes and
// unknown values are rejected.
func ParseOperation(value string) (Operation, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "INSERT":
		return OpInsert, nil
	case "UPDATE":
		return OpUpdate, nil
	default:
		return 0, fmt.Errorf("unsupported operation %q", value)
	}
}

// ChangeEvent describes one backend mutation awaiting a flush.
type ChangeEvent struct {
	Topic     Topic
	Operation Operation
	Payload   Record
}
