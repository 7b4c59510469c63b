package audit

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	j, err := OpenJournal(db, key)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	return j
}

type toolInvokedPayload struct {
	ToolID string `json:"tool_id"`
	Caller string `json:"caller"`
}

func TestJournal_AppendAndVerify(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	id, err := j.Append(ctx, EventToolInvocation, toolInvokedPayload{ToolID: "web_search", Caller: "user-1"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	ok, err := j.Verify(ctx, id)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Error("Verify = false, want true for untampered entry")
	}
}

func TestJournal_VerifyMissingID(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	if _, err := j.Verify(ctx, "does-not-exist"); err != ErrJournalEmpty {
		t.Errorf("err = %v, want ErrJournalEmpty", err)
	}
}

func TestJournal_VerifyAll_AllGenuine(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	for i := 0; i < 5; i++ {
		if _, err := j.Append(ctx, EventToolCompletion, toolInvokedPayload{ToolID: "file_read", Caller: "user-1"}); err != nil {
			t.Fatalf("Append #%d: %v", i, err)
		}
	}

	report, err := j.VerifyAll(ctx)
	if err != nil {
		t.Fatalf("VerifyAll: %v", err)
	}
	if report.Total != 5 || report.Verified != 5 || len(report.Tampered) != 0 {
		t.Errorf("report = %+v, want 5/5/none", report)
	}
}

func TestJournal_VerifyAll_DetectsTamperedPayload(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	first, err := j.Append(ctx, EventToolInvocation, toolInvokedPayload{ToolID: "exec", Caller: "user-1"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := j.Append(ctx, EventToolCompletion, toolInvokedPayload{ToolID: "exec", Caller: "user-1"}); err != nil {
		t.Fatalf("Append #2: %v", err)
	}

	if _, err := j.db.ExecContext(ctx, `UPDATE journal SET payload = ? WHERE id = ?`, []byte(`{"tool_id":"rm -rf /","caller":"user-1"}`), first); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	report, err := j.VerifyAll(ctx)
	if err != nil {
		t.Fatalf("VerifyAll: %v", err)
	}
	if report.Verified != 0 {
		t.Errorf("report.Verified = %d, want 0 (tampering on entry 1 should break every MAC after it in the chain check too)", report.Verified)
	}
	found := false
	for _, id := range report.Tampered {
		if id == first {
			found = true
		}
	}
	if !found {
		t.Errorf("report.Tampered = %v, want it to include %s", report.Tampered, first)
	}
}

func TestJournal_ChainPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}

	db1, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	j1, err := OpenJournal(db1, key)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	if _, err := j1.Append(ctx, EventToolInvocation, toolInvokedPayload{ToolID: "a", Caller: "u"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	db1.Close()

	db2, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	j2, err := OpenJournal(db2, key)
	if err != nil {
		t.Fatalf("OpenJournal (2nd): %v", err)
	}
	if _, err := j2.Append(ctx, EventToolCompletion, toolInvokedPayload{ToolID: "a", Caller: "u"}); err != nil {
		t.Fatalf("Append (2nd): %v", err)
	}

	report, err := j2.VerifyAll(ctx)
	if err != nil {
		t.Fatalf("VerifyAll: %v", err)
	}
	if report.Total != 2 || report.Verified != 2 {
		t.Errorf("report = %+v, want 2/2 across reopen", report)
	}
}
