package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/Relay/internal/domain/agentcard"
	"github.com/Strob0t/Relay/internal/domain/message"
	"github.com/Strob0t/Relay/internal/service"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.sendMessageTool(),
		s.getMessageTool(),
		s.queryMessagesTool(),
		s.getInboxTool(),
		s.updateMessageStatusTool(),
		s.routeRequestTool(),
		s.getAgentCardTool(),
		s.findAgentsTool(),
	)
}

func (s *Server) sendMessageTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("send_message",
		mcplib.WithDescription("Send a message to an agent, or to all agents with recipient 'all'"),
		mcplib.WithString("from",
			mcplib.Required(),
			mcplib.Description("Sending agent id"),
		),
		mcplib.WithString("to",
			mcplib.Required(),
			mcplib.Description("Recipient agent id, or 'all' for broadcast"),
		),
		mcplib.WithString("type",
			mcplib.Required(),
			mcplib.Description("Message type: request, response, notification, or escalation"),
		),
		mcplib.WithString("priority",
			mcplib.Required(),
			mcplib.Description("Message priority: low, medium, high, or urgent"),
		),
		mcplib.WithString("subject",
			mcplib.Required(),
			mcplib.Description("Short summary line"),
		),
		mcplib.WithString("body",
			mcplib.Required(),
			mcplib.Description("Message body"),
		),
		mcplib.WithString("related_task_id",
			mcplib.Description("Optional task id this message relates to"),
		),
		mcplib.WithString("related_message_id",
			mcplib.Description("Optional id of an existing message this one replies to"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleSendMessage,
	}
}

func (s *Server) getMessageTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_message",
		mcplib.WithDescription("Get a single message by id"),
		mcplib.WithString("message_id",
			mcplib.Required(),
			mcplib.Description("The message id to look up"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetMessage,
	}
}

func (s *Server) queryMessagesTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("query_messages",
		mcplib.WithDescription("Query messages by sender, recipient, type, priority, status, or task id; newest first"),
		mcplib.WithString("from", mcplib.Description("Filter by sending agent id")),
		mcplib.WithString("to", mcplib.Description("Filter by exact recipient; use 'all' for broadcasts")),
		mcplib.WithString("type", mcplib.Description("Filter by message type")),
		mcplib.WithString("priority", mcplib.Description("Filter by priority")),
		mcplib.WithString("status", mcplib.Description("Filter by status")),
		mcplib.WithString("task_id", mcplib.Description("Filter by related task id")),
		mcplib.WithNumber("limit", mcplib.Description("Maximum results, default 50")),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleQueryMessages,
	}
}

func (s *Server) getInboxTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_inbox",
		mcplib.WithDescription("Get an agent's inbox: messages addressed to it directly or via broadcast, newest first"),
		mcplib.WithString("agent_id",
			mcplib.Required(),
			mcplib.Description("The agent whose inbox to read"),
		),
		mcplib.WithNumber("limit", mcplib.Description("Maximum results, default 20")),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetInbox,
	}
}

func (s *Server) updateMessageStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("update_message_status",
		mcplib.WithDescription("Move a message through its lifecycle: acknowledged, in_progress, resolved, or escalated"),
		mcplib.WithString("message_id",
			mcplib.Required(),
			mcplib.Description("The message id to update"),
		),
		mcplib.WithString("status",
			mcplib.Required(),
			mcplib.Description("Target status"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleUpdateMessageStatus,
	}
}

func (s *Server) routeRequestTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("route_request",
		mcplib.WithDescription("Route a request to an agent advertising the given capability"),
		mcplib.WithString("capability",
			mcplib.Required(),
			mcplib.Description("Capability the target agent must advertise"),
		),
		mcplib.WithString("from",
			mcplib.Required(),
			mcplib.Description("Sending agent id"),
		),
		mcplib.WithString("subject",
			mcplib.Required(),
			mcplib.Description("Short summary line"),
		),
		mcplib.WithString("body",
			mcplib.Required(),
			mcplib.Description("Request body"),
		),
		mcplib.WithString("priority",
			mcplib.Description("Message priority, default medium"),
		),
		mcplib.WithString("related_task_id",
			mcplib.Description("Optional task id this request relates to"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleRouteRequest,
	}
}

func (s *Server) getAgentCardTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_agent_card",
		mcplib.WithDescription("Get a registered agent's capability card"),
		mcplib.WithString("agent_id",
			mcplib.Required(),
			mcplib.Description("The agent id to look up"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetAgentCard,
	}
}

func (s *Server) findAgentsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("find_agents",
		mcplib.WithDescription("List registered agent cards, optionally filtered by capability"),
		mcplib.WithString("capability", mcplib.Description("Capability the agents must advertise")),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleFindAgents,
	}
}

func (s *Server) handleSendMessage(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Messages == nil {
		return mcplib.NewToolResultError("message service not configured"), nil
	}
	args := req.GetArguments()
	from, _ := args["from"].(string)
	to, _ := args["to"].(string)
	if from == "" || to == "" {
		return mcplib.NewToolResultError("from and to are required"), nil
	}
	typ, _ := args["type"].(string)
	priority, _ := args["priority"].(string)
	subject, _ := args["subject"].(string)
	body, _ := args["body"].(string)
	taskID, _ := args["related_task_id"].(string)
	relatedID, _ := args["related_message_id"].(string)

	m, err := s.deps.Messages.Create(ctx, message.Draft{
		From:             from,
		To:               message.To(to),
		Type:             message.Type(typ),
		Priority:         message.Priority(priority),
		Subject:          subject,
		Body:             body,
		RelatedTaskID:    taskID,
		RelatedMessageID: relatedID,
	})
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to send message", err), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal message", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetMessage(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Messages == nil {
		return mcplib.NewToolResultError("message service not configured"), nil
	}
	args := req.GetArguments()
	id, ok := args["message_id"].(string)
	if !ok || id == "" {
		return mcplib.NewToolResultError("message_id is required"), nil
	}
	m, err := s.deps.Messages.Get(ctx, id)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get message %s", id), err,
		), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal message", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleQueryMessages(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Messages == nil {
		return mcplib.NewToolResultError("message service not configured"), nil
	}
	args := req.GetArguments()
	filter := message.Filter{}
	if v, _ := args["from"].(string); v != "" {
		filter.From = v
	}
	if v, _ := args["to"].(string); v != "" {
		recipient := message.To(v)
		filter.To = &recipient
	}
	if v, _ := args["type"].(string); v != "" {
		filter.Type = message.Type(v)
	}
	if v, _ := args["priority"].(string); v != "" {
		filter.Priority = message.Priority(v)
	}
	if v, _ := args["status"].(string); v != "" {
		filter.Status = message.Status(v)
	}
	if v, _ := args["task_id"].(string); v != "" {
		filter.TaskID = v
	}
	limit := 0
	if v, ok := args["limit"].(float64); ok {
		limit = int(v)
	}

	msgs, err := s.deps.Messages.Query(ctx, filter, limit)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to query messages", err), nil
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal messages", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetInbox(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Messages == nil {
		return mcplib.NewToolResultError("message service not configured"), nil
	}
	args := req.GetArguments()
	agentID, ok := args["agent_id"].(string)
	if !ok || agentID == "" {
		return mcplib.NewToolResultError("agent_id is required"), nil
	}
	limit := 0
	if v, ok := args["limit"].(float64); ok {
		limit = int(v)
	}

	msgs, err := s.deps.Messages.Inbox(ctx, agentID, limit)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to read inbox for %s", agentID), err,
		), nil
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal inbox", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleUpdateMessageStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Messages == nil {
		return mcplib.NewToolResultError("message service not configured"), nil
	}
	args := req.GetArguments()
	id, _ := args["message_id"].(string)
	status, _ := args["status"].(string)
	if id == "" || status == "" {
		return mcplib.NewToolResultError("message_id and status are required"), nil
	}

	m, err := s.deps.Messages.UpdateStatus(ctx, id, message.Status(status))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to update message %s", id), err,
		), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal message", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleRouteRequest(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Discovery == nil {
		return mcplib.NewToolResultError("discovery service not configured"), nil
	}
	args := req.GetArguments()
	capability, _ := args["capability"].(string)
	from, _ := args["from"].(string)
	if capability == "" || from == "" {
		return mcplib.NewToolResultError("capability and from are required"), nil
	}
	subject, _ := args["subject"].(string)
	body, _ := args["body"].(string)
	priority, _ := args["priority"].(string)
	taskID, _ := args["related_task_id"].(string)

	m, agentID, err := s.deps.Discovery.RouteRequest(ctx, service.RouteRequest{
		Capability: capability,
		Subject:    subject,
		Body:       body,
		Priority:   message.Priority(priority),
		From:       from,
		TaskID:     taskID,
	})
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to route request for %q", capability), err,
		), nil
	}
	data, err := json.Marshal(map[string]any{"agent_id": agentID, "message": m})
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal routing result", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetAgentCard(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Registry == nil {
		return mcplib.NewToolResultError("registry not configured"), nil
	}
	args := req.GetArguments()
	agentID, ok := args["agent_id"].(string)
	if !ok || agentID == "" {
		return mcplib.NewToolResultError("agent_id is required"), nil
	}
	card, err := s.deps.Registry.Get(ctx, agentID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get card for %s", agentID), err,
		), nil
	}
	data, err := json.Marshal(card)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal card", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleFindAgents(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Registry == nil {
		return mcplib.NewToolResultError("registry not configured"), nil
	}
	args := req.GetArguments()
	capability, _ := args["capability"].(string)

	cards, err := s.deps.Registry.List(ctx, agentcard.Filter{Capability: capability})
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list agent cards", err), nil
	}
	data, err := json.Marshal(cards)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal cards", err), nil
	}
	return toolResultJSON(string(data)), nil
}
