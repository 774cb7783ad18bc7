package api

import "github.com/google/uuid"

type (
	// NodeID uniquely identifies a node within a deployed flow document
	NodeID string

	// FlowID identifies a flow container: a tab, a subflow template or a
	// subflow instance scope
	FlowID string
)

// NewID returns a fresh random identifier suitable for message ids,
// sequence group ids and link-call correlation ids
func NewID() string {
	return uuid.NewString()
}
