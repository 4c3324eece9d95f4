package protocol

const (
	ActionSubscribe      = "subscribe"
	ActionUnsubscribe    = "unsubscribe"
	ActionUnsubscribeAll = "unsubscribe_all"
)

type WSRequest struct {
	Action  string         `json:"action"`
	Payload RequestPayload `json:"payload"`
	ID      string         `json:"id,omitempty"`
}

// RequestPayload names feeds: an instrument symbol or "ratio"
type RequestPayload struct {
	Topics []string `json:"topics"`
}

type WSResponse struct {
	Type    string      `json:"type"`             // "ack", "error"
	ID      string      `json:"id,omitempty"`     // echoes the request ID
	Status  string      `json:"status,omitempty"` // "success", "error"
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}
