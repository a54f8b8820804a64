// Package gateway defines the protocol-agnostic data model shared by the
// routing core: requests, results, providers, scores, and decisions.
// Nothing in this package depends on a specific backend's wire format.
package gateway

import (
	"time"

	gwerrors "github.com/arcrelay/gateway/pkg/errors"
)

// Validation errors, all of kind ValidationFailed per the error table.
var (
	ErrNoMessages     = gwerrors.New(gwerrors.KindValidationFailed, "", "request must contain at least one message")
	ErrBadTemperature = gwerrors.New(gwerrors.KindValidationFailed, "", "temperature must be within [0, 2]")
	ErrBadMaxTokens   = gwerrors.New(gwerrors.KindValidationFailed, "", "max_tokens must be > 0")
)

// Role identifies the speaker of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a chat-style inference request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// LatencyClass expresses how latency-sensitive a caller considers a
// request, used to pick a default SLA target when none is given.
type LatencyClass string

const (
	LatencyUltraLow LatencyClass = "ultra_low"
	LatencyLow      LatencyClass = "low"
	LatencyMedium   LatencyClass = "medium"
	LatencyHigh     LatencyClass = "high"
)

// DefaultSLATargetMS returns the latency-class baseline used when a
// request doesn't specify an explicit SLATargetMS.
func (c LatencyClass) DefaultSLATargetMS() float64 {
	switch c {
	case LatencyUltraLow:
		return 500
	case LatencyLow:
		return 1000
	case LatencyMedium:
		return 2000
	case LatencyHigh:
		return 5000
	default:
		return 2000
	}
}

// InferenceRequest is the standardized, provider-agnostic shape of an
// inference call entering the routing core.
type InferenceRequest struct {
	Messages       []Message
	ModelFamily    string
	Model          string
	MaxTokens      int
	Temperature    float64
	TopP           float64
	Stream         bool
	Latency        LatencyClass
	SLATargetMS    float64 // 0 means "use Latency's default"
	CostBudgetUSD  float64 // 0 means "no budget constraint"
	CostPriority   bool
	Capabilities   []string // capabilities this request requires of a provider
	ClientKey      string   // user id if authenticated, else client IP
	RequestPath    string   // admission endpoint key, e.g. "/v1/chat/completions"
}

// Validate checks the invariants a well-formed request must satisfy.
func (r *InferenceRequest) Validate() error {
	if len(r.Messages) == 0 {
		return ErrNoMessages
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return ErrBadTemperature
	}
	if r.MaxTokens <= 0 {
		return ErrBadMaxTokens
	}
	return nil
}

// Usage records token accounting for a completed inference.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// InferenceResult is the standardized result of an inference call,
// successful or not.
type InferenceResult struct {
	Text         string
	Usage        Usage
	Model        string
	FinishReason string
	LatencyMS    int64
	Success      bool
	ErrorMessage string
}

// HealthStatus is the point-in-time result of a lightweight health probe,
// distinct from a Provider's persisted OperationalStatus.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// OperationalStatus is the administrative lifecycle state of a Provider.
// Providers are never destroyed, only disabled.
type OperationalStatus string

const (
	StatusActive      OperationalStatus = "active"
	StatusDegraded    OperationalStatus = "degraded"
	StatusMaintenance OperationalStatus = "maintenance"
	StatusDisabled    OperationalStatus = "disabled"
)

// ModelSpec describes one model a provider serves.
type ModelSpec struct {
	Name             string
	ContextWindow    int
	CostPerTokenIn   float64
	CostPerTokenOut  float64
}

// Provider is the registry's static+administrative record for one
// backend. Loaded at startup; mutated only by admin action or
// telemetry-driven status updates.
type Provider struct {
	ID           string
	Name         string
	Capabilities []string
	Models       []ModelSpec
	BaseURL      string
	CredentialID string // opaque handle, resolved via internal/secret
	LatencyHint  LatencyClass
	Priority     int
	Enabled      bool
	Status       OperationalStatus
}

// HasCapability reports whether the provider declares a capability.
func (p *Provider) HasCapability(cap string) bool {
	for _, c := range p.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// ModelByName returns the named model spec, if the provider serves it.
func (p *Provider) ModelByName(name string) (ModelSpec, bool) {
	for _, m := range p.Models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelSpec{}, false
}

// ProviderScore is the ephemeral output of scoring one candidate
// provider against one request. Never persisted.
type ProviderScore struct {
	ProviderID      string
	LatencyScore    float64
	CostScore       float64
	ReliabilityScore float64
	CapabilityScore float64
	HealthPenalty   float64
	LoadPenalty     float64
	Composite       float64
	Confidence      float64
}

// RoutingDecision is the output of the decision engine for one request
// hash: a chosen primary, an ordered fallback list, and the reasoning.
type RoutingDecision struct {
	Provider      string
	Model         string
	Score         ProviderScore
	Fallbacks     []string
	Reason        string
	CacheHit      bool
	RequestHash   string
	DecidedAt     time.Time
}

// FallbackLevel is the admission layer's graded response to load.
type FallbackLevel string

const (
	LevelNormal    FallbackLevel = "normal"
	LevelCheapModel FallbackLevel = "cheap_model"
	LevelEmergency FallbackLevel = "emergency"
	LevelDeny      FallbackLevel = "deny"
)
