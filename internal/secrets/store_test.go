package secrets

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	keyring.MockInit()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if err := s.Put("openai_api_key", []byte("sk-abc123")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get("openai_api_key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "sk-abc123" {
		t.Errorf("Get = %q, want %q", got, "sk-abc123")
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_GetOrCreate_GeneratesOnce(t *testing.T) {
	s := newTestStore(t)
	calls := 0
	gen := func() ([]byte, error) {
		calls++
		return []byte("generated"), nil
	}

	first, err := s.GetOrCreate("k_audit", gen)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	second, err := s.GetOrCreate("k_audit", gen)
	if err != nil {
		t.Fatalf("GetOrCreate (2nd): %v", err)
	}
	if string(first) != string(second) {
		t.Errorf("GetOrCreate returned different values: %q vs %q", first, second)
	}
	if calls != 1 {
		t.Errorf("generator called %d times, want 1", calls)
	}
}

func TestStore_Rotate_ChangesValue(t *testing.T) {
	s := newTestStore(t)
	if err := s.Put("k_jwt", []byte("old")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	newVal, err := s.Rotate("k_jwt", func() ([]byte, error) { return []byte("new"), nil })
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if string(newVal) != "new" {
		t.Errorf("Rotate returned %q, want %q", newVal, "new")
	}
	got, err := s.Get("k_jwt")
	if err != nil {
		t.Fatalf("Get after rotate: %v", err)
	}
	if string(got) != "new" {
		t.Errorf("Get after rotate = %q, want %q", got, "new")
	}
}

func TestRandomBytes_Length(t *testing.T) {
	gen := RandomBytes(32)
	b, err := gen()
	if err != nil {
		t.Fatalf("gen: %v", err)
	}
	if len(b) != 32 {
		t.Errorf("len(b) = %d, want 32", len(b))
	}
}
