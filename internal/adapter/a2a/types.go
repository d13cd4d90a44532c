// Package a2a bridges the native message schema and the Agent-to-Agent
// JSON-RPC 2.0 envelope. It is the only place internal errors become
// JSON-RPC error objects.
package a2a

import "encoding/json"

// Version is the only JSON-RPC protocol version the adapter accepts.
const Version = "2.0"

// Methods under the a2a.* namespace.
const (
	MethodSendMessage        = "a2a.sendMessage"
	MethodGetMessages        = "a2a.getMessages"
	MethodAcknowledgeMessage = "a2a.acknowledgeMessage"
	MethodResolveMessage     = "a2a.resolveMessage"
	MethodGetAgentCard       = "a2a.getAgentCard"
	MethodListAgentCards     = "a2a.listAgentCards"
)

// JSON-RPC error codes. The -3260x codes come from JSON-RPC 2.0; the
// -3200x range carries store-raised errors across the boundary.
const (
	CodeParseError        = -32700
	CodeInvalidRequest    = -32600
	CodeMethodNotFound    = -32601
	CodeInvalidParams     = -32602
	CodeInternalError     = -32000
	CodeNotFound          = -32001
	CodeInvalidTransition = -32002
	CodeNoCapableAgent    = -32003
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response envelope. Exactly one of Result and
// Error is set.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendMessageParams carries a native message draft on the wire. The native
// body field travels as "content"; everything else maps one to one.
type SendMessageParams struct {
	From             string `json:"from"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Priority         string `json:"priority"`
	Subject          string `json:"subject"`
	Content          string `json:"content"`
	RelatedTaskID    string `json:"related_task_id,omitempty"`
	RelatedMessageID string `json:"related_message_id,omitempty"`
}

// GetMessagesParams selects an agent's inbox, optionally narrowed by status.
type GetMessagesParams struct {
	AgentID string `json:"agent_id"`
	Status  string `json:"status,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// StatusParams identifies the message for acknowledge/resolve calls.
type StatusParams struct {
	MessageID string `json:"message_id"`
}

// GetAgentCardParams identifies the card to fetch.
type GetAgentCardParams struct {
	AgentID string `json:"agent_id"`
}

// ListAgentCardsParams filters the card listing.
type ListAgentCardsParams struct {
	Capability     string `json:"capability,omitempty"`
	Specialization string `json:"specialization,omitempty"`
	Status         string `json:"status,omitempty"`
}

// knownMethods is the dispatch allowlist.
var knownMethods = map[string]bool{
	MethodSendMessage:        true,
	MethodGetMessages:        true,
	MethodAcknowledgeMessage: true,
	MethodResolveMessage:     true,
	MethodGetAgentCard:       true,
	MethodListAgentCards:     true,
}
