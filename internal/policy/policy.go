// Package policy implements the PolicyEngine / ToolGuard (component C): a
// static, startup-loaded table of per-tool validation rules, and the
// validate operation the ToolExecutor calls before every tool invocation.
// Nothing here mutates after Load — the table is read-only for the life of
// the process, per the configuration design (static ToolPolicy table,
// never mutated at runtime).
package policy

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/haasonsaas/orchestrator-core/internal/core"
	"github.com/haasonsaas/orchestrator-core/internal/tools/files"
	"github.com/haasonsaas/orchestrator-core/internal/tools/security"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// RiskLevel gates the ToolExecutor's per-call deadline and approval
// requirement.
type RiskLevel string

const (
	RiskStandard RiskLevel = "standard"
	RiskCritical RiskLevel = "critical"
)

// ToolRule is one tool's entry in the static policy table.
type ToolRule struct {
	Name   string    `yaml:"name"`
	Risk   RiskLevel `yaml:"risk"`
	Schema string    `yaml:"schema"` // raw JSON Schema text, compiled at Load

	// ValidatesPath, when non-empty, names the parameter holding a
	// workspace-relative path that must be resolved under Root without
	// escaping it.
	ValidatesPath string `yaml:"validates_path,omitempty"`

	// ValidatesURL, when non-empty, names the parameter holding a URL that
	// must use an allowed scheme and must not name a blocked host or a
	// private/internal IP literal. Hostnames are not resolved through DNS.
	ValidatesURL string `yaml:"validates_url,omitempty"`

	// ValidatesShell, when non-empty, names the parameter holding a shell
	// command to scan for dangerous metacharacters.
	ValidatesShell string `yaml:"validates_shell,omitempty"`

	// ValidatesQuery, when non-empty, names a free-text parameter (e.g. a
	// search query) to screen for injection-style suspicious content.
	ValidatesQuery string `yaml:"validates_query,omitempty"`

	// MaxRatePerMinute bounds calls per (tool, caller) pair; 0 means the
	// ToolExecutor applies its own default.
	MaxRatePerMinute int `yaml:"max_rate_per_minute,omitempty"`

	// RequiresApproval gates execution on an external Approver decision.
	RequiresApproval bool `yaml:"requires_approval,omitempty"`

	compiled *jsonschema.Schema
}

// Engine is the PolicyEngine. Build it once via Load and share it read-only
// across goroutines.
type Engine struct {
	rules   map[string]*ToolRule
	root    string // workspace root for ValidatesPath checks
	schemes map[string]bool
}

// allowedURLSchemes is the default scheme allow-list; "http"/"https" are the
// only schemes a tool's URL parameter may use.
var allowedURLSchemes = map[string]bool{"http": true, "https": true}

// blockedHosts are explicitly denied regardless of DNS resolution, mirroring
// the desktop host's SSRF guard: loopback and the AWS/GCP metadata
// endpoints are never reachable from a tool call.
var blockedHosts = map[string]bool{
	"127.0.0.1":                true,
	"169.254.169.254":          true,
	"localhost":                true,
	"metadata.google.internal": true,
}

// Load compiles rules into an Engine. root is the workspace root used for
// ValidatesPath checks. Load is called once at startup; the returned Engine
// is immutable.
func Load(rules []ToolRule, root string) (*Engine, error) {
	e := &Engine{
		rules:   make(map[string]*ToolRule, len(rules)),
		root:    root,
		schemes: allowedURLSchemes,
	}
	for i := range rules {
		r := rules[i]
		if r.Schema != "" {
			compiled, err := compileSchema(r.Name, r.Schema)
			if err != nil {
				return nil, fmt.Errorf("policy: compile schema for %s: %w", r.Name, err)
			}
			r.compiled = compiled
		}
		e.rules[r.Name] = &r
	}
	return e, nil
}

func compileSchema(name, text string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	resource := name + ".json"
	if err := compiler.AddResource(resource, strings.NewReader(text)); err != nil {
		return nil, err
	}
	return compiler.Compile(resource)
}

// Violation is a single Validate failure, carrying the core.Kind it
// surfaces as once translated into a tool-error message.
type Violation struct {
	Kind   core.Kind
	Detail string
}

func (v *Violation) Error() string {
	if v.Detail != "" {
		return fmt.Sprintf("%s: %s", v.Kind, v.Detail)
	}
	return string(v.Kind)
}

// Rule returns the static rule registered for toolID, if any. The
// ToolExecutor uses this to read Risk/MaxRatePerMinute/RequiresApproval
// without re-running Validate.
func (e *Engine) Rule(toolID string) (ToolRule, bool) {
	rule, ok := e.rules[toolID]
	if !ok {
		return ToolRule{}, false
	}
	return *rule, true
}

// Validate checks a tool call against the static table, returning nil on
// success or a *Violation naming which of the eight policy violation kinds
// fired.
func (e *Engine) Validate(toolID string, params json.RawMessage) error {
	rule, ok := e.rules[toolID]
	if !ok {
		return &Violation{Kind: core.KindUnknownTool, Detail: toolID}
	}

	if rule.compiled != nil {
		var doc any
		if err := json.Unmarshal(params, &doc); err != nil {
			return &Violation{Kind: core.KindMalformed, Detail: err.Error()}
		}
		if err := rule.compiled.Validate(doc); err != nil {
			if verr, ok := err.(*jsonschema.ValidationError); ok {
				if isUnknownParameter(verr) {
					return &Violation{Kind: core.KindUnknownParameter, Detail: verr.Error()}
				}
			}
			return &Violation{Kind: core.KindMalformed, Detail: err.Error()}
		}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(params, &fields); err != nil {
		return &Violation{Kind: core.KindMalformed, Detail: "parameters must be a JSON object"}
	}

	if rule.ValidatesPath != "" {
		if err := e.validatePath(rule, fields); err != nil {
			return err
		}
	}
	if rule.ValidatesURL != "" {
		if err := e.validateURL(rule, fields); err != nil {
			return err
		}
	}
	if rule.ValidatesShell != "" {
		if err := validateShell(rule, fields); err != nil {
			return err
		}
	}
	if rule.ValidatesQuery != "" {
		if err := validateQuery(rule, fields); err != nil {
			return err
		}
	}
	return nil
}

func isUnknownParameter(verr *jsonschema.ValidationError) bool {
	return strings.Contains(strings.ToLower(verr.Error()), "additionalproperties")
}

func stringField(fields map[string]json.RawMessage, name string) (string, bool) {
	raw, ok := fields[name]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func (e *Engine) validatePath(rule *ToolRule, fields map[string]json.RawMessage) error {
	path, ok := stringField(fields, rule.ValidatesPath)
	if !ok {
		return nil
	}
	resolver := files.Resolver{Root: e.root}
	if _, err := resolver.Resolve(path); err != nil {
		return &Violation{Kind: core.KindPathTraversal, Detail: path}
	}
	return nil
}

func (e *Engine) validateURL(rule *ToolRule, fields map[string]json.RawMessage) error {
	raw, ok := stringField(fields, rule.ValidatesURL)
	if !ok {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &Violation{Kind: core.KindMalformed, Detail: "invalid url: " + raw}
	}
	if !e.schemes[strings.ToLower(u.Scheme)] {
		return &Violation{Kind: core.KindInsecureScheme, Detail: u.Scheme}
	}
	host := u.Hostname()
	if blockedHosts[strings.ToLower(host)] {
		return &Violation{Kind: core.KindBlockedHost, Detail: host}
	}
	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return &Violation{Kind: core.KindBlockedHost, Detail: host}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, block := range privateCIDRs {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

var privateCIDRs = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"100.64.0.0/10",
	"169.254.0.0/16",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic("policy: invalid built-in cidr " + c)
		}
		out = append(out, n)
	}
	return out
}

func validateShell(rule *ToolRule, fields map[string]json.RawMessage) error {
	cmd, ok := stringField(fields, rule.ValidatesShell)
	if !ok {
		return nil
	}
	if analysis := security.AnalyzeCommandQuoteAware(cmd); !analysis.IsSafe {
		return &Violation{Kind: core.KindDangerousCode, Detail: analysis.Reason}
	}
	return nil
}

// suspiciousQueryMarkers are substrings that suggest a search/fetch query is
// attempting prompt injection or credential exfiltration rather than a
// legitimate lookup.
var suspiciousQueryMarkers = []string{
	"ignore previous instructions",
	"ignore all previous",
	"system prompt",
	"api key",
	"reveal your instructions",
}

func validateQuery(rule *ToolRule, fields map[string]json.RawMessage) error {
	q, ok := stringField(fields, rule.ValidatesQuery)
	if !ok {
		return nil
	}
	lower := strings.ToLower(q)
	for _, marker := range suspiciousQueryMarkers {
		if strings.Contains(lower, marker) {
			return &Violation{Kind: core.KindSuspiciousQuery, Detail: marker}
		}
	}
	return nil
}
