package api

type (
	// SubscribeRequest is sent by comms clients to select the event topics
	// they receive. Topics match by prefix; an empty list receives all
	SubscribeRequest struct {
		Type   string   `json:"type"`
		Topics []string `json:"topics"`
	}

	// SubscribedResult acknowledges a subscription
	SubscribedResult struct {
		Type   string   `json:"type"`
		Topics []string `json:"topics"`
		Rev    string   `json:"rev,omitempty"`
	}
)

const (
	SubscribeType  = "subscribe"
	SubscribedType = "subscribed"
)
