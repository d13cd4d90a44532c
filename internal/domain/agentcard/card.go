// Package agentcard defines the AgentCard discovery record.
package agentcard

import (
	"fmt"
	"time"

	"github.com/Strob0t/Relay/internal/domain"
)

// AuthType enumerates the authentication schemes a card can advertise.
// These are descriptors for callers; the broker does not enforce them.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthAPIKey AuthType = "api_key"
	AuthOAuth  AuthType = "oauth"
	AuthMTLS   AuthType = "mtls"
)

// Valid reports whether a is a known authentication scheme.
func (a AuthType) Valid() bool {
	switch a {
	case AuthNone, AuthAPIKey, AuthOAuth, AuthMTLS:
		return true
	}
	return false
}

// Transport describes one way to reach an agent.
type Transport struct {
	Type     string   `json:"type"`
	Endpoint string   `json:"endpoint"`
	Methods  []string `json:"methods,omitempty"`
	Events   []string `json:"events,omitempty"`
}

// Authentication describes the scheme an agent expects from callers.
// KeyHash holds a bcrypt hash when the scheme is api_key; raw key
// material is never stored.
type Authentication struct {
	Type     AuthType `json:"type"`
	Required bool     `json:"required"`
	KeyHash  string   `json:"key_hash,omitempty"`
}

// Metadata keys with conventional meaning for discovery filters.
const (
	MetaSpecialization = "specialization"
	MetaStatus         = "status"
)

// StatusInactive is the metadata status marking a retired card. Cards are
// never deleted; they are marked inactive instead.
const StatusInactive = "inactive"

// Card describes an agent's identity, advertised capabilities, and
// reachable transports. Cards are mutated only by their owning agent_id.
type Card struct {
	AgentID        string            `json:"agent_id"`
	Name           string            `json:"name"`
	Version        string            `json:"version"`
	Capabilities   []string          `json:"capabilities"`
	Transports     []Transport       `json:"transports"`
	Authentication Authentication    `json:"authentication"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// HasCapability reports whether the card advertises the given capability.
func (c *Card) HasCapability(capability string) bool {
	for _, have := range c.Capabilities {
		if have == capability {
			return true
		}
	}
	return false
}

// Meta returns the metadata value for key, or "" when unset.
func (c *Card) Meta(key string) string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata[key]
}

// UpsertRequest holds the mutable fields of a card registration.
type UpsertRequest struct {
	AgentID        string            `json:"agent_id"`
	Name           string            `json:"name"`
	Version        string            `json:"version"`
	Capabilities   []string          `json:"capabilities"`
	Transports     []Transport       `json:"transports"`
	Authentication Authentication    `json:"authentication"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Validate rejects registrations with missing identity fields, duplicate
// capability entries, empty transports, or an unknown auth scheme.
func (r UpsertRequest) Validate() error {
	switch {
	case r.AgentID == "":
		return fmt.Errorf("agent_id is required: %w", domain.ErrValidation)
	case r.Name == "":
		return fmt.Errorf("name is required: %w", domain.ErrValidation)
	case r.Version == "":
		return fmt.Errorf("version is required: %w", domain.ErrValidation)
	case len(r.Transports) == 0:
		return fmt.Errorf("at least one transport is required: %w", domain.ErrValidation)
	}
	if r.Authentication.Type != "" && !r.Authentication.Type.Valid() {
		return fmt.Errorf("unknown authentication type %q: %w", r.Authentication.Type, domain.ErrValidation)
	}
	seen := make(map[string]struct{}, len(r.Capabilities))
	for _, capability := range r.Capabilities {
		if capability == "" {
			return fmt.Errorf("empty capability entry: %w", domain.ErrValidation)
		}
		if _, dup := seen[capability]; dup {
			return fmt.Errorf("duplicate capability %q: %w", capability, domain.ErrValidation)
		}
		seen[capability] = struct{}{}
	}
	for _, tr := range r.Transports {
		if tr.Type == "" || tr.Endpoint == "" {
			return fmt.Errorf("transport requires type and endpoint: %w", domain.ErrValidation)
		}
	}
	return nil
}

// Filter selects cards by AND-combined criteria. Zero-valued fields match
// everything.
type Filter struct {
	Capability     string
	Specialization string
	Status         string
}

// Matches reports whether c satisfies every set field of f.
func (f Filter) Matches(c *Card) bool {
	if f.Capability != "" && !c.HasCapability(f.Capability) {
		return false
	}
	if f.Specialization != "" && c.Meta(MetaSpecialization) != f.Specialization {
		return false
	}
	if f.Status != "" && c.Meta(MetaStatus) != f.Status {
		return false
	}
	return true
}
