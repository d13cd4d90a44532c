package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Strob0t/Relay/internal/domain"
	"github.com/Strob0t/Relay/internal/domain/agentcard"
	"github.com/Strob0t/Relay/internal/domain/message"
	"github.com/Strob0t/Relay/internal/port/storage"
)

// MessageAPI is the message surface the adapter dispatches onto.
type MessageAPI interface {
	Create(ctx context.Context, draft message.Draft) (*message.Message, error)
	Query(ctx context.Context, filter message.Filter, limit int) ([]message.Message, error)
	UpdateStatus(ctx context.Context, id string, to message.Status) (*message.Message, error)
}

// RegistryAPI is the card surface the adapter dispatches onto.
type RegistryAPI interface {
	Get(ctx context.Context, agentID string) (*agentcard.Card, error)
	List(ctx context.Context, filter agentcard.Filter) ([]agentcard.Card, error)
}

// Adapter translates between the native schema and the A2A envelope and
// dispatches recognized methods onto the services.
type Adapter struct {
	messages MessageAPI
	registry RegistryAPI
}

// NewAdapter creates a new Adapter.
func NewAdapter(messages MessageAPI, registry RegistryAPI) *Adapter {
	return &Adapter{messages: messages, registry: registry}
}

// ToRequest renders a native message as an outbound a2a.sendMessage request.
// The envelope id is a fresh correlation uuid; store-assigned fields (id,
// status, timestamps) stay out of the params so the translation inverts
// cleanly on the receiving side.
func ToRequest(m *message.Message) (*Request, error) {
	params, err := json.Marshal(paramsFromMessage(m))
	if err != nil {
		return nil, fmt.Errorf("marshal params for %s: %w", m.ID, err)
	}
	return &Request{
		JSONRPC: Version,
		ID:      uuid.NewString(),
		Method:  MethodSendMessage,
		Params:  params,
	}, nil
}

func paramsFromMessage(m *message.Message) SendMessageParams {
	return SendMessageParams{
		From:             m.From,
		To:               m.To.AgentID(),
		Type:             string(m.Type),
		Priority:         string(m.Priority),
		Subject:          m.Subject,
		Content:          m.Body,
		RelatedTaskID:    m.RelatedTaskID,
		RelatedMessageID: m.RelatedMessageID,
	}
}

// DraftFromParams maps inbound sendMessage params onto a native draft.
// Only the to/content renames happen here; field validation stays with
// Draft.Validate at the store boundary.
func DraftFromParams(p SendMessageParams) message.Draft {
	to := message.To(p.To)
	if p.To == message.Broadcast().AgentID() {
		to = message.Broadcast()
	}
	return message.Draft{
		From:             p.From,
		To:               to,
		Type:             message.Type(p.Type),
		Priority:         message.Priority(p.Priority),
		Subject:          p.Subject,
		Body:             p.Content,
		RelatedTaskID:    p.RelatedTaskID,
		RelatedMessageID: p.RelatedMessageID,
	}
}

// Validate checks the envelope structurally: protocol version and method.
// Param contents are checked during dispatch, where the shape is known.
func Validate(req *Request) *Error {
	if req.JSONRPC != Version {
		return &Error{Code: CodeInvalidRequest, Message: fmt.Sprintf("unsupported jsonrpc version %q", req.JSONRPC)}
	}
	if !knownMethods[req.Method] {
		return &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("unknown method %q", req.Method)}
	}
	return nil
}

// Dispatch validates the envelope, routes the method call, and wraps the
// outcome in a response carrying the request's id.
func (a *Adapter) Dispatch(ctx context.Context, req *Request) *Response {
	if rpcErr := Validate(req); rpcErr != nil {
		return errorResponse(req.ID, rpcErr)
	}

	result, err := a.call(ctx, req)
	if err != nil {
		return errorResponse(req.ID, errorFrom(err))
	}
	return &Response{JSONRPC: Version, ID: req.ID, Result: result}
}

func (a *Adapter) call(ctx context.Context, req *Request) (any, error) {
	switch req.Method {
	case MethodSendMessage:
		var p SendMessageParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return a.messages.Create(ctx, DraftFromParams(p))

	case MethodGetMessages:
		var p GetMessagesParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if p.AgentID == "" {
			return nil, fmt.Errorf("agent_id is required: %w", domain.ErrValidation)
		}
		filter := message.Inbox(p.AgentID)
		if p.Status != "" {
			status := message.Status(p.Status)
			if !status.Valid() {
				return nil, fmt.Errorf("unknown status %q: %w", p.Status, domain.ErrValidation)
			}
			filter.Status = status
		}
		limit := p.Limit
		if limit <= 0 {
			limit = storage.DefaultInboxLimit
		}
		msgs, err := a.messages.Query(ctx, filter, limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"messages": msgs, "count": len(msgs)}, nil

	case MethodAcknowledgeMessage:
		return a.updateStatus(ctx, req.Params, message.StatusAcknowledged)

	case MethodResolveMessage:
		return a.updateStatus(ctx, req.Params, message.StatusResolved)

	case MethodGetAgentCard:
		var p GetAgentCardParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if p.AgentID == "" {
			return nil, fmt.Errorf("agent_id is required: %w", domain.ErrValidation)
		}
		return a.registry.Get(ctx, p.AgentID)

	case MethodListAgentCards:
		var p ListAgentCardsParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		cards, err := a.registry.List(ctx, agentcard.Filter{
			Capability:     p.Capability,
			Specialization: p.Specialization,
			Status:         p.Status,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"cards": cards, "count": len(cards)}, nil
	}

	// Unreachable: Validate already rejected unknown methods.
	return nil, fmt.Errorf("unknown method %q: %w", req.Method, domain.ErrValidation)
}

func (a *Adapter) updateStatus(ctx context.Context, raw json.RawMessage, to message.Status) (any, error) {
	var p StatusParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.MessageID == "" {
		return nil, fmt.Errorf("message_id is required: %w", domain.ErrValidation)
	}
	return a.messages.UpdateStatus(ctx, p.MessageID, to)
}

func decodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("params are required: %w", domain.ErrValidation)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("malformed params: %v: %w", err, domain.ErrValidation)
	}
	return nil
}

// errorFrom maps internal errors onto JSON-RPC error objects. Sentinel
// checks run most-specific first; anything unrecognized is an internal
// error that keeps its message.
func errorFrom(err error) *Error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return &Error{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidTransition):
		return &Error{Code: CodeInvalidTransition, Message: err.Error()}
	case errors.Is(err, domain.ErrNoCapableAgent):
		return &Error{Code: CodeNoCapableAgent, Message: err.Error()}
	default:
		return &Error{Code: CodeInternalError, Message: err.Error()}
	}
}

func errorResponse(id any, rpcErr *Error) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: rpcErr}
}
