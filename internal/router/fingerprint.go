package router

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/orchestrator-core/internal/core"
)

// normalizedRequest is the stable shape hashed into a
// fingerprint. Its fields are a strict subset of core.Request, per the data
// model's "normalized message list, model identifier, temperature, tool
// list, tool-choice mode".
type normalizedRequest struct {
	Messages   []normalizedMessage `json:"messages"`
	Model      string              `json:"model"`
	Temp       *float64            `json:"temperature,omitempty"`
	Tools      []string            `json:"tools"` // tool names only, in declaration order (not sorted)
	ToolChoice core.ToolChoiceMode `json:"tool_choice"`
}

type normalizedMessage struct {
	Role       core.Role `json:"role"`
	Text       string    `json:"text"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
}

// Fingerprint computes the stable digest used as the cache key and audit
// correlation id for req.
func Fingerprint(req core.Request) string {
	norm := normalizedRequest{
		Model:      req.Model,
		Temp:       req.Temperature,
		ToolChoice: req.ToolChoice,
	}
	for _, m := range req.Messages {
		norm.Messages = append(norm.Messages, normalizedMessage{
			Role:       m.Role,
			Text:       m.Text(),
			ToolCallID: m.ToolCallID,
		})
	}
	for _, t := range req.Tools {
		norm.Tools = append(norm.Tools, t.Name)
	}

	// json.Marshal on a struct with fixed field order and no maps is
	// deterministic, so the same logical request always hashes identically.
	b, err := json.Marshal(norm)
	if err != nil {
		// Request contents are always JSON-marshalable chat data; a failure
		// here means a caller built an invalid core.Request.
		panic(fmt.Sprintf("router: fingerprint request: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
