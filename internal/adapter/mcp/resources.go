package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/Strob0t/Relay/internal/domain/agentcard"
	"github.com/Strob0t/Relay/internal/domain/message"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"relay://cards",
			"Agent Cards",
			mcplib.WithResourceDescription("All registered agent capability cards"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleCardsResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"relay://messages/recent",
			"Recent Messages",
			mcplib.WithResourceDescription("Most recent messages across all agents"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleRecentMessagesResource,
	)
}

func (s *Server) handleCardsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Registry == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"registry not configured"}`,
			},
		}, nil
	}
	cards, err := s.deps.Registry.List(ctx, agentcard.Filter{})
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(cards)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleRecentMessagesResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Messages == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"message service not configured"}`,
			},
		}, nil
	}
	msgs, err := s.deps.Messages.Query(ctx, message.Filter{}, 0)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
