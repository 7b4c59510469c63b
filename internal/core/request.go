package core

import "encoding/json"

// ToolChoiceMode controls whether/how the model is compelled to call a tool.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceNamed    ToolChoiceMode = "named"
)

// ToolSpec is a tool definition as advertised to a provider: name,
// description, and a JSON Schema for its arguments.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Request is one chat/tool completion request. Immutable after submission;
// the Router never mutates a Request in place, it builds a new one per
// ToolExecutor iteration (spec: "Request ... Immutable after submission").
type Request struct {
	Messages    []ChatMessage  `json:"messages"`
	Model       string         `json:"model,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Stream      bool           `json:"stream"`
	Tools       []ToolSpec     `json:"tools,omitempty"`
	ToolChoice  ToolChoiceMode `json:"tool_choice,omitempty"`
	ToolName    string         `json:"tool_name,omitempty"` // set when ToolChoice == ToolChoiceNamed
}

// Strategy selects how the Router ranks candidate adapters.
type Strategy string

const (
	StrategyAuto           Strategy = "auto"
	StrategyLowestCost     Strategy = "lowest_cost"
	StrategyLowestLatency  Strategy = "lowest_latency"
	StrategyHighestQuality Strategy = "highest_quality"
	StrategyPinnedOrder    Strategy = "pinned_order"
)

// RouterPreferences steers candidate selection for one route() call.
type RouterPreferences struct {
	Provider    string
	Model       string
	Strategy    Strategy
	PinnedOrder []Candidate // used only when Strategy == StrategyPinnedOrder
}

// Candidate is one (provider, model, adapter) triple the Router may try, in
// the order it intends to try them.
type Candidate struct {
	ProviderID string
	ModelID    string
}
