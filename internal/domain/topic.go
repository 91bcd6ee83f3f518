package domain

import (
	"fmt"
	"strings"
)

// TopicKind discriminates the target kinds events can be routed to.
type TopicKind string

const (
	TopicContent TopicKind = "content"
	TopicUser    TopicKind = "user"
	TopicStream  TopicKind = "stream"
)

// Valid reports whether k is one of the known topic kinds.
func (k TopicKind) Valid() bool {
	switch k {
	case TopicContent, TopicUser, TopicStream:
		return true
	}
	return false
}

// Topic is a routing address. Using a struct instead of an ad hoc
// "kind:id" string keeps kind and id from colliding in lookups; the
// canonical string form only appears on the wire and in logs.
type Topic struct {
	Kind TopicKind
	ID   string
}

func NewContentTopic(id string) Topic { return Topic{Kind: TopicContent, ID: id} }
func NewUserTopic(id string) Topic    { return Topic{Kind: TopicUser, ID: id} }
func NewStreamTopic(id string) Topic  { return Topic{Kind: TopicStream, ID: id} }

// Key renders the canonical "kind:id" form.
func (t Topic) Key() string {
	return fmt.Sprintf("%s:%s", t.Kind, t.ID)
}

// IsZero reports whether the topic is unset.
func (t Topic) IsZero() bool {
	return t.Kind == "" && t.ID == ""
}

// ParseTopic parses the canonical "kind:id" form.
func ParseTopic(key string) (Topic, error) {
	kind, id, ok := strings.Cut(key, ":")
	if !ok || id == "" {
		return Topic{}, fmt.Errorf("malformed topic %q", key)
	}
	switch TopicKind(kind) {
	case TopicContent, TopicUser, TopicStream:
		return Topic{Kind: TopicKind(kind), ID: id}, nil
	default:
		return Topic{}, fmt.Errorf("unknown topic kind %q", kind)
	}
}

// MarshalText renders the canonical form for JSON/wire use.
func (t Topic) MarshalText() ([]byte, error) {
	return []byte(t.Key()), nil
}

// UnmarshalText parses the canonical form from JSON/wire use.
func (t *Topic) UnmarshalText(data []byte) error {
	parsed, err := ParseTopic(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
