package auth

// User is the identity this package issues and validates sessions for. It
// intentionally carries nothing the orchestration core itself does not need
// (no role/permission graph, no provider-account linkage) — a host embedding
// this core is expected to look up anything richer by ID.
type User struct {
	ID    string
	Email string
	Name  string
}

// Caller is what Validate returns on a successful check: the identity bound
// to an access token, for use as the Router/ToolExecutor's callerID.
type Caller struct {
	UserID string
	Email  string
	Name   string
}
