package audit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// journalEntry is the canonical, order-stable shape hashed into the chain.
// Field order is fixed by struct declaration, so json.Marshal always
// produces the same bytes for the same logical entry.
type journalEntry struct {
	ID        string          `json:"id"`
	Seq       int64           `json:"seq"`
	PrevMAC   string          `json:"prev_mac"`
	Timestamp string          `json:"timestamp"`
	EventType EventType       `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// Record is a journal entry as returned by reads, carrying its stored MAC.
type Record struct {
	ID        string
	Seq       int64
	PrevMAC   string
	Timestamp time.Time
	EventType EventType
	Payload   json.RawMessage
	MAC       string
}

// VerifyReport summarizes a verify_all run.
type VerifyReport struct {
	Total    int
	Verified int
	Tampered []string // IDs whose stored MAC does not match its recomputed MAC, or whose PrevMAC does not match the preceding entry's stored MAC
}

// ErrJournalEmpty is returned by Verify when no record exists under the
// given id.
var ErrJournalEmpty = errors.New("audit: no journal record with that id")

// Journal is the tamper-evident append log (component D). Every entry's MAC
// covers its own fields plus the previous entry's MAC. VerifyAll reports an
// altered entry as tampered, and a removed entry breaks the link of the entry
// that followed it; entries further along still verify, since each is checked
// against its predecessor's stored MAC.
type Journal struct {
	db  *sql.DB
	key []byte

	mu      sync.Mutex
	lastMAC string
	nextSeq int64
}

// OpenJournal creates the journal table if absent and primes the chain from
// the last stored entry. key is the HMAC signing key (K_audit), at least 32
// bytes, normally sourced from the secret store.
func OpenJournal(db *sql.DB, key []byte) (*Journal, error) {
	if len(key) < 32 {
		return nil, fmt.Errorf("audit: journal key must be at least 32 bytes, got %d", len(key))
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS journal (
		id         TEXT PRIMARY KEY,
		seq        INTEGER UNIQUE NOT NULL,
		prev_mac   TEXT NOT NULL,
		ts         TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload    BLOB NOT NULL,
		mac        TEXT NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("audit: create journal table: %w", err)
	}

	j := &Journal{db: db, key: append([]byte(nil), key...)}

	var lastMAC string
	var lastSeq int64
	err := db.QueryRow(`SELECT mac, seq FROM journal ORDER BY seq DESC LIMIT 1`).Scan(&lastMAC, &lastSeq)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		j.lastMAC = ""
		j.nextSeq = 0
	case err != nil:
		return nil, fmt.Errorf("audit: read journal tail: %w", err)
	default:
		j.lastMAC = lastMAC
		j.nextSeq = lastSeq + 1
	}
	return j, nil
}

// Append signs payload, chains it to the previous entry, and stores it.
// Returns the new entry's id.
func (j *Journal) Append(ctx context.Context, eventType EventType, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("audit: marshal journal payload: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	entry := journalEntry{
		ID:        uuid.NewString(),
		Seq:       j.nextSeq,
		PrevMAC:   j.lastMAC,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		EventType: eventType,
		Payload:   raw,
	}
	mac, err := sign(j.key, entry)
	if err != nil {
		return "", err
	}

	_, err = j.db.ExecContext(ctx, `INSERT INTO journal (id, seq, prev_mac, ts, event_type, payload, mac)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Seq, entry.PrevMAC, entry.Timestamp, string(entry.EventType), []byte(entry.Payload), mac)
	if err != nil {
		return "", fmt.Errorf("audit: insert journal entry: %w", err)
	}

	j.lastMAC = mac
	j.nextSeq++
	return entry.ID, nil
}

// Verify recomputes the MAC for a single entry and reports whether it still
// matches what was stored. It does not check the entry's place in the
// chain; use VerifyAll to detect a broken or truncated chain.
func (j *Journal) Verify(ctx context.Context, id string) (bool, error) {
	rec, err := j.get(ctx, id)
	if err != nil {
		return false, err
	}
	entry := journalEntry{
		ID:        rec.ID,
		Seq:       rec.Seq,
		PrevMAC:   rec.PrevMAC,
		Timestamp: rec.Timestamp.UTC().Format(time.RFC3339Nano),
		EventType: rec.EventType,
		Payload:   rec.Payload,
	}
	want, err := sign(j.key, entry)
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(want), []byte(rec.MAC)), nil
}

// VerifyAll walks every entry in sequence order, recomputing its MAC and
// checking that its prev_mac matches the previous entry's stored MAC. Every
// id that fails either check is reported as tampered.
func (j *Journal) VerifyAll(ctx context.Context) (VerifyReport, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT id, seq, prev_mac, ts, event_type, payload, mac FROM journal ORDER BY seq ASC`)
	if err != nil {
		return VerifyReport{}, fmt.Errorf("audit: list journal: %w", err)
	}
	defer rows.Close()

	var report VerifyReport
	expectedPrev := ""
	for rows.Next() {
		var id, prevMAC, tsText, eventType, mac string
		var seq int64
		var payload []byte
		if err := rows.Scan(&id, &seq, &prevMAC, &tsText, &eventType, &payload, &mac); err != nil {
			return VerifyReport{}, fmt.Errorf("audit: scan journal row: %w", err)
		}
		report.Total++

		entry := journalEntry{
			ID:        id,
			Seq:       seq,
			PrevMAC:   prevMAC,
			Timestamp: tsText,
			EventType: EventType(eventType),
			Payload:   payload,
		}
		want, err := sign(j.key, entry)
		ok := err == nil && hmac.Equal([]byte(want), []byte(mac)) && prevMAC == expectedPrev
		if ok {
			report.Verified++
		} else {
			report.Tampered = append(report.Tampered, id)
		}
		expectedPrev = mac
	}
	if err := rows.Err(); err != nil {
		return VerifyReport{}, fmt.Errorf("audit: iterate journal: %w", err)
	}
	return report, nil
}

func (j *Journal) get(ctx context.Context, id string) (Record, error) {
	var rec Record
	var tsText, eventType, mac string
	var payload []byte
	err := j.db.QueryRowContext(ctx,
		`SELECT id, seq, prev_mac, ts, event_type, payload, mac FROM journal WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Seq, &rec.PrevMAC, &tsText, &eventType, &payload, &mac)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrJournalEmpty
	}
	if err != nil {
		return Record{}, fmt.Errorf("audit: read journal entry %s: %w", id, err)
	}
	rec.EventType = EventType(eventType)
	rec.Payload = payload
	rec.MAC = mac
	rec.Timestamp, err = time.Parse(time.RFC3339Nano, tsText)
	if err != nil {
		return Record{}, fmt.Errorf("audit: parse journal timestamp: %w", err)
	}
	return rec, nil
}

func sign(key []byte, entry journalEntry) (string, error) {
	canonical, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("audit: marshal canonical entry: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}
