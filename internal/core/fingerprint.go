package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// normalizedRequest is the canonical projection of a Request used to compute
// its fingerprint: field order and tool order are fixed so that two
// logically-identical requests hash identically regardless of slice order
// coming in from the caller.
type normalizedRequest struct {
	Messages    []ChatMessage  `json:"messages"`
	Model       string         `json:"model"`
	Temperature float64        `json:"temperature"`
	Tools       []string       `json:"tools"`
	ToolChoice  ToolChoiceMode `json:"tool_choice"`
}

// Fingerprint computes a stable digest over the normalized message list,
// model identifier, temperature, tool list, and tool-choice mode. It is used
// as the ResponseCache key and as the correlation id written to the Journal.
func Fingerprint(req Request) string {
	temp := 1.0
	if req.Temperature != nil {
		temp = *req.Temperature
	}

	names := make([]string, 0, len(req.Tools))
	for _, t := range req.Tools {
		names = append(names, t.Name)
	}
	sort.Strings(names)

	n := normalizedRequest{
		Messages:    req.Messages,
		Model:       req.Model,
		Temperature: temp,
		Tools:       names,
		ToolChoice:  req.ToolChoice,
	}

	// json.Marshal of a struct emits fields in declaration order, which is
	// fixed above, so this produces a stable byte sequence for equal
	// normalizedRequest values.
	b, err := json.Marshal(n)
	if err != nil {
		// Marshal can only fail here on a cyclic or unsupported value, which
		// a ChatMessage/Request never is; treat as unreachable.
		panic("core: fingerprint marshal: " + err.Error())
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
