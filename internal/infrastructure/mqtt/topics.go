package mqtt

import "strings"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "whepgw"

// Topics builds gateway topic names under a common prefix.
//
//	topics := mqtt.NewTopics("whepgw")
//	topics.Event("session.created") // "whepgw/events/session/created"
type Topics struct {
	prefix string
}

// NewTopics returns a builder for the given prefix.
// Surrounding slashes are trimmed; an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the configured prefix.
func (t Topics) Prefix() string {
	return t.prefix
}

// Status is the retained online/offline topic for this gateway.
//
// Example: whepgw/status
func (t Topics) Status() string {
	return t.prefix + "/status"
}

// Event returns the topic for an event type. Dots in the type become
// topic levels so subscribers can filter with wildcards.
//
// Example: whepgw/events/registry/refresh_failed
func (t Topics) Event(eventType string) string {
	return t.prefix + "/events/" + strings.ReplaceAll(eventType, ".", "/")
}

// AllEvents is the wildcard subscription matching every event topic.
func (t Topics) AllEvents() string {
	return t.prefix + "/events/#"
}

// Command returns the topic for an inbound command.
//
// Example: whepgw/command/refresh
func (t Topics) Command(name string) string {
	return t.prefix + "/command/" + name
}
