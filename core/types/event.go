package types

// Event is the wire form of a module event: a dot-namespaced type plus
// flat string attributes, as streamed and audited.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
