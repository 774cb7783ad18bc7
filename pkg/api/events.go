package api

import "encoding/json"

type (
	// Event is published on the runtime event hub and streamed to comms
	// clients
	Event struct {
		Type      EventType       `json:"type"`
		Topic     string          `json:"topic"`
		Data      json.RawMessage `json:"data"`
		Timestamp int64           `json:"timestamp"`
	}

	// StatusEvent reports a node's status change
	StatusEvent struct {
		Status Status `json:"status"`
		Source Source `json:"source"`
	}

	// DebugEvent carries a message rendered by a debug node
	DebugEvent struct {
		ID       NodeID `json:"id"`
		Z        FlowID `json:"z,omitempty"`
		Name     string `json:"name,omitempty"`
		Topic    string `json:"topic,omitempty"`
		Property string `json:"property"`
		Msg      any    `json:"msg"`
	}

	// DeployEvent announces that a new flow revision is running
	DeployEvent struct {
		Rev  string         `json:"revision"`
		Type DeploymentType `json:"type"`
	}

	// ErrorEvent reports an error no catch node handled
	ErrorEvent struct {
		Error  string `json:"error"`
		Source Source `json:"source"`
		MsgID  string `json:"_msgid,omitempty"`
	}

	// Source identifies the node an event or error originated from
	Source struct {
		ID    NodeID `json:"id"`
		Type  string `json:"type"`
		Name  string `json:"name,omitempty"`
		Count int    `json:"count,omitempty"`
	}

	EventType string
)

const (
	EventTypeStatus EventType = "status"
	EventTypeDebug  EventType = "debug"
	EventTypeDeploy EventType = "deploy"
	EventTypeError  EventType = "error"
)
