package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Helper types and functions
// =============================================================================

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func newBufferedLogger(cfg Config) *Logger {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	return &Logger{
		config:     cfg,
		eventTypes: make(map[EventType]bool),
		buffer:     make(chan *Event, 20),
		done:       make(chan struct{}),
	}
}

func recvEvent(t *testing.T, ch chan *Event) *Event {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected event in buffer")
		return nil
	}
}

// =============================================================================
// 1. Logger Configuration Tests
// =============================================================================

func TestNewLogger_Disabled(t *testing.T) {
	logger, err := NewLogger(Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	logger.Log(context.Background(), &Event{Type: EventToolInvocation})
	if err := logger.Close(); err != nil {
		t.Errorf("unexpected error closing: %v", err)
	}
}

func TestNewLogger_OutputDestinations(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		wantErr bool
	}{
		{name: "stdout", output: "stdout"},
		{name: "empty defaults to stdout", output: ""},
		{name: "stderr", output: "stderr"},
		{name: "invalid scheme", output: "ftp://invalid", wantErr: true},
		{name: "file with invalid path", output: "file:/nonexistent/path/that/should/not/exist/audit.log", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(Config{Enabled: true, Output: tt.output})

			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer logger.Close()
		})
	}
}

func TestNewLogger_FileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.log")

	logger, err := NewLogger(Config{
		Enabled: true,
		Output:  "file:" + logPath,
		Format:  FormatJSON,
		Level:   LevelInfo,
	})
	if err != nil {
		t.Fatalf("failed to create logger with file output: %v", err)
	}

	logger.Log(context.Background(), &Event{Type: EventAgentStartup, Level: LevelInfo, Action: "test_startup"})
	time.Sleep(100 * time.Millisecond)

	if err := logger.Close(); err != nil {
		t.Errorf("error closing logger: %v", err)
	}
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Error("log file was not created")
	}
}

func TestNewLogger_OutputFormats(t *testing.T) {
	for _, format := range []OutputFormat{FormatJSON, FormatText, FormatLogfmt, ""} {
		t.Run(string(format), func(t *testing.T) {
			logger, err := NewLogger(Config{Enabled: true, Format: format, Output: "stdout"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer logger.Close()
		})
	}
}

func TestNewLogger_ConfigDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "defaults_test.log")

	logger, err := NewLogger(Config{Enabled: true, Output: "file:" + logPath})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Close()

	if logger.config.SampleRate != 1.0 {
		t.Errorf("expected SampleRate 1.0, got %v", logger.config.SampleRate)
	}
	if logger.config.BufferSize != 1000 {
		t.Errorf("expected BufferSize 1000, got %d", logger.config.BufferSize)
	}
	if logger.config.FlushInterval != 5*time.Second {
		t.Errorf("expected FlushInterval 5s, got %v", logger.config.FlushInterval)
	}
	if logger.config.MaxFieldSize != 1024 {
		t.Errorf("expected MaxFieldSize 1024, got %d", logger.config.MaxFieldSize)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Enabled {
		t.Error("expected Enabled to be false")
	}
	if cfg.Level != LevelInfo {
		t.Errorf("expected Level LevelInfo, got %v", cfg.Level)
	}
	if cfg.Format != FormatJSON {
		t.Errorf("expected Format FormatJSON, got %v", cfg.Format)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected SampleRate 1.0, got %v", cfg.SampleRate)
	}
	if cfg.Output != "stdout" {
		t.Errorf("expected Output 'stdout', got %v", cfg.Output)
	}
	if cfg.IncludeToolInput || cfg.IncludeToolOutput || cfg.IncludeMessageContent {
		t.Error("expected privacy-sensitive fields to default to false")
	}
	if cfg.MaxFieldSize != 1024 {
		t.Errorf("expected MaxFieldSize 1024, got %d", cfg.MaxFieldSize)
	}
}

func TestConfig_PrivacyControls(t *testing.T) {
	tests := []struct {
		name                 string
		includeToolInput     bool
		expectInputInDetails bool
		expectHash           bool
	}{
		{name: "input included verbatim", includeToolInput: true, expectInputInDetails: true},
		{name: "input hashed when excluded", includeToolInput: false, expectHash: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := newBufferedLogger(Config{
				Enabled:          true,
				Level:            LevelInfo,
				IncludeToolInput: tt.includeToolInput,
				MaxFieldSize:     1024,
			})
			logger.output = &nopWriteCloser{buf}

			logger.LogToolInvocation(context.Background(), "test_tool", "call-123", []byte(`{"query":"test"}`), "session-key")

			details := recvEvent(t, logger.buffer).Details
			if tt.expectInputInDetails {
				if _, ok := details["input"]; !ok {
					t.Error("expected input in details")
				}
			}
			if tt.expectHash {
				if _, ok := details["input_hash"]; !ok {
					t.Error("expected input_hash in details")
				}
			}
		})
	}
}

func TestConfig_SamplingRates(t *testing.T) {
	tests := []struct {
		name        string
		sampleRate  float64
		eventCount  int
		expectRange [2]int
	}{
		{name: "100% sampling", sampleRate: 1.0, eventCount: 100, expectRange: [2]int{100, 100}},
		{name: "0% sampling", sampleRate: 0.0, eventCount: 100, expectRange: [2]int{0, 0}},
		{name: "50% sampling (approximate)", sampleRate: 0.5, eventCount: 1000, expectRange: [2]int{300, 700}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &Logger{
				config:     Config{Enabled: true, Level: LevelInfo, SampleRate: tt.sampleRate},
				eventTypes: make(map[EventType]bool),
				buffer:     make(chan *Event, tt.eventCount+100),
				done:       make(chan struct{}),
			}

			for i := 0; i < tt.eventCount; i++ {
				logger.Log(context.Background(), &Event{Type: EventToolInvocation, Level: LevelInfo, Action: "test"})
			}

			if count := len(logger.buffer); count < tt.expectRange[0] || count > tt.expectRange[1] {
				t.Errorf("expected events in range [%d, %d], got %d", tt.expectRange[0], tt.expectRange[1], count)
			}
		})
	}
}

func TestConfig_FieldTruncation(t *testing.T) {
	t.Run("tool input truncated past max size", func(t *testing.T) {
		logger := newBufferedLogger(Config{Enabled: true, IncludeToolInput: true, MaxFieldSize: 50})
		logger.LogToolInvocation(context.Background(), "test_tool", "call-123", []byte(strings.Repeat("a", 100)), "session-key")

		inputVal, ok := recvEvent(t, logger.buffer).Details["input"].(string)
		if !ok {
			t.Fatal("expected input in details")
		}
		if !strings.HasSuffix(inputVal, "...(truncated)") {
			t.Error("expected truncation suffix")
		}
	})

	t.Run("tool input within max size untouched", func(t *testing.T) {
		logger := newBufferedLogger(Config{Enabled: true, IncludeToolInput: true, MaxFieldSize: 100})
		logger.LogToolInvocation(context.Background(), "test_tool", "call-123", []byte(strings.Repeat("a", 50)), "session-key")

		inputVal := recvEvent(t, logger.buffer).Details["input"].(string)
		if strings.HasSuffix(inputVal, "...(truncated)") {
			t.Error("unexpected truncation")
		}
	})

	t.Run("tool output truncated past max size", func(t *testing.T) {
		logger := newBufferedLogger(Config{Enabled: true, IncludeToolOutput: true, MaxFieldSize: 50})
		logger.LogToolCompletion(context.Background(), "test_tool", "call-123", true, strings.Repeat("x", 100), time.Second, "session-key")

		outputVal, ok := recvEvent(t, logger.buffer).Details["output"].(string)
		if !ok {
			t.Fatal("expected output in details")
		}
		if !strings.HasSuffix(outputVal, "...(truncated)") {
			t.Error("expected truncation suffix")
		}
	})

	t.Run("tool output excluded records only size", func(t *testing.T) {
		logger := newBufferedLogger(Config{Enabled: true, IncludeToolOutput: false, MaxFieldSize: 1024})
		output := "test output data"
		logger.LogToolCompletion(context.Background(), "test_tool", "call-123", true, output, time.Second, "session-key")

		event := recvEvent(t, logger.buffer)
		if _, ok := event.Details["output"]; ok {
			t.Error("should not include output when IncludeToolOutput is false")
		}
		if size, ok := event.Details["output_size"].(int); !ok || size != len(output) {
			t.Errorf("expected output_size %d, got %v", len(output), event.Details["output_size"])
		}
	})
}

// =============================================================================
// 2. Event Logging Tests
// =============================================================================

func TestLogger_LogLevels(t *testing.T) {
	tests := []struct {
		configLevel Level
		eventLevel  Level
		shouldLog   bool
	}{
		{LevelDebug, LevelDebug, true}, {LevelDebug, LevelInfo, true}, {LevelDebug, LevelWarn, true}, {LevelDebug, LevelError, true},
		{LevelInfo, LevelDebug, false}, {LevelInfo, LevelInfo, true}, {LevelInfo, LevelWarn, true}, {LevelInfo, LevelError, true},
		{LevelWarn, LevelDebug, false}, {LevelWarn, LevelInfo, false}, {LevelWarn, LevelWarn, true}, {LevelWarn, LevelError, true},
		{LevelError, LevelDebug, false}, {LevelError, LevelInfo, false}, {LevelError, LevelWarn, false}, {LevelError, LevelError, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.configLevel)+"_"+string(tt.eventLevel), func(t *testing.T) {
			logger := &Logger{config: Config{Enabled: true, Level: tt.configLevel}}
			if result := logger.shouldLog(tt.eventLevel); result != tt.shouldLog {
				t.Errorf("shouldLog(%s) with config level %s = %v, want %v", tt.eventLevel, tt.configLevel, result, tt.shouldLog)
			}
		})
	}
}

func TestLogger_EventTypeFiltering(t *testing.T) {
	t.Run("only configured types pass", func(t *testing.T) {
		logger := newBufferedLogger(Config{Enabled: true, Level: LevelInfo})
		logger.eventTypes = map[EventType]bool{EventToolInvocation: true}

		logger.Log(context.Background(), &Event{Type: EventToolCompletion, Level: LevelInfo})
		logger.Log(context.Background(), &Event{Type: EventToolInvocation, Level: LevelInfo})

		event := recvEvent(t, logger.buffer)
		if event.Type != EventToolInvocation {
			t.Errorf("expected EventToolInvocation, got %v", event.Type)
		}
		select {
		case extra := <-logger.buffer:
			t.Errorf("unexpected second event in buffer: %v", extra.Type)
		default:
		}
	})

	t.Run("empty filter allows everything", func(t *testing.T) {
		logger := newBufferedLogger(Config{Enabled: true, Level: LevelInfo})
		types := []EventType{EventToolInvocation, EventToolCompletion, EventAgentAction, EventPermissionGranted, EventSessionCompact}
		for _, et := range types {
			logger.Log(context.Background(), &Event{Type: et, Level: LevelInfo})
		}
		for range types {
			recvEvent(t, logger.buffer)
		}
	})
}

func TestLogger_AllEventCategories(t *testing.T) {
	// One representative event type per category defined in types.go, to catch
	// wiring mistakes (typo'd constant, missing category) without enumerating
	// every constant.
	representative := []EventType{
		EventToolInvocation, EventAgentHandoff, EventPermissionDenied,
		EventSessionCompact, EventMessageReceived, EventGatewayError,
	}

	for _, et := range representative {
		t.Run(string(et), func(t *testing.T) {
			logger := newBufferedLogger(Config{Enabled: true, Level: LevelDebug})
			logger.Log(context.Background(), &Event{Type: et, Level: LevelInfo, Action: "test_" + string(et)})

			if event := recvEvent(t, logger.buffer); event.Type != et {
				t.Errorf("expected event type %s, got %s", et, event.Type)
			}
		})
	}
}

func TestLogger_EventMetadataPreservation(t *testing.T) {
	logger := newBufferedLogger(Config{Enabled: true, Level: LevelInfo})

	original := &Event{
		Type:          EventToolInvocation,
		Level:         LevelInfo,
		SessionID:     "sess-123",
		SessionKey:    "agent:main:telegram:123",
		AgentID:       "agent-456",
		ToolName:      "web_search",
		ToolCallID:    "call-789",
		Action:        "tool_invoked",
		UserID:        "user-111",
		Channel:       "telegram",
		ParentEventID: "parent-222",
		Details:       map[string]any{"custom_field": "custom_value"},
	}
	logger.Log(context.Background(), original)

	event := recvEvent(t, logger.buffer)
	if event.ID == "" {
		t.Error("expected ID to be auto-generated")
	}
	if event.Timestamp.IsZero() {
		t.Error("expected Timestamp to be set")
	}
	for _, mismatch := range []struct {
		name      string
		got, want string
	}{
		{"SessionID", event.SessionID, original.SessionID},
		{"SessionKey", event.SessionKey, original.SessionKey},
		{"AgentID", event.AgentID, original.AgentID},
		{"ToolName", event.ToolName, original.ToolName},
		{"ToolCallID", event.ToolCallID, original.ToolCallID},
		{"UserID", event.UserID, original.UserID},
		{"Channel", event.Channel, original.Channel},
		{"ParentEventID", event.ParentEventID, original.ParentEventID},
	} {
		if mismatch.got != mismatch.want {
			t.Errorf("%s mismatch: got %s, want %s", mismatch.name, mismatch.got, mismatch.want)
		}
	}
	if event.Details["custom_field"] != "custom_value" {
		t.Error("Details not preserved correctly")
	}
}

// TestLogger_ConvenienceMethods exercises every Log* helper on Logger through
// a shared table, checking the event type/level each produces and one
// detail field specific to that call. The individual helpers are thin
// wrappers around Log, so there's no value in a dedicated test function per
// method.
func TestLogger_ConvenienceMethods(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		call      func(l *Logger)
		wantType  EventType
		wantLevel Level
		check     func(t *testing.T, e *Event)
	}{
		{
			name:      "LogToolInvocation",
			call:      func(l *Logger) { l.LogToolInvocation(ctx, "web_search", "call-123", json.RawMessage(`{"query":"test"}`), "session-key") },
			wantType:  EventToolInvocation,
			wantLevel: LevelInfo,
			check: func(t *testing.T, e *Event) {
				if e.ToolName != "web_search" || e.ToolCallID != "call-123" || e.SessionKey != "session-key" {
					t.Errorf("unexpected event fields: %+v", e)
				}
			},
		},
		{
			name:      "LogToolCompletion success",
			call:      func(l *Logger) { l.LogToolCompletion(ctx, "web_search", "call-123", true, "output data", 500*time.Millisecond, "session-key") },
			wantType:  EventToolCompletion,
			wantLevel: LevelInfo,
			check: func(t *testing.T, e *Event) {
				if e.Duration != 500*time.Millisecond || e.Details["success"] != true {
					t.Errorf("unexpected event fields: %+v", e)
				}
			},
		},
		{
			name:      "LogToolCompletion failure",
			call:      func(l *Logger) { l.LogToolCompletion(ctx, "web_search", "call-123", false, "output data", time.Second, "session-key") },
			wantType:  EventToolCompletion,
			wantLevel: LevelWarn,
			check: func(t *testing.T, e *Event) {
				if e.Details["success"] != false {
					t.Errorf("expected success=false, got %+v", e.Details)
				}
			},
		},
		{
			name:      "LogToolDenied",
			call:      func(l *Logger) { l.LogToolDenied(ctx, "dangerous_tool", "call-123", "policy violation", "deny_all_policy", "session-key") },
			wantType:  EventToolDenied,
			wantLevel: LevelWarn,
			check: func(t *testing.T, e *Event) {
				if e.Details["reason"] != "policy violation" || e.Details["policy_matched"] != "deny_all_policy" {
					t.Errorf("unexpected details: %+v", e.Details)
				}
			},
		},
		{
			name:      "LogPermissionDecision granted",
			call:      func(l *Logger) { l.LogPermissionDecision(ctx, true, "file_read", "/tmp/test", "read", "test reason", "session-key") },
			wantType:  EventPermissionGranted,
			wantLevel: LevelInfo,
			check: func(t *testing.T, e *Event) {
				if e.Details["granted"] != true || e.Details["permission"] != "file_read" || e.Details["resource"] != "/tmp/test" {
					t.Errorf("unexpected details: %+v", e.Details)
				}
			},
		},
		{
			name:      "LogPermissionDecision denied",
			call:      func(l *Logger) { l.LogPermissionDecision(ctx, false, "file_write", "/etc/passwd", "write", "policy", "session-key") },
			wantType:  EventPermissionDenied,
			wantLevel: LevelWarn,
			check: func(t *testing.T, e *Event) {
				if e.Details["granted"] != false {
					t.Errorf("expected granted=false, got %+v", e.Details)
				}
			},
		},
		{
			name:      "LogAgentHandoff",
			call:      func(l *Logger) { l.LogAgentHandoff(ctx, "agent-1", "agent-2", "task delegation", "full", 2, "session-key") },
			wantType:  EventAgentHandoff,
			wantLevel: LevelInfo,
			check: func(t *testing.T, e *Event) {
				if e.AgentID != "agent-2" || e.Details["from_agent_id"] != "agent-1" || e.Details["handoff_depth"] != 2 {
					t.Errorf("unexpected event fields: %+v", e)
				}
			},
		},
		{
			name:      "LogSessionCompact",
			call:      func(l *Logger) { l.LogSessionCompact(ctx, "sess-123", "session-key", 100, 50, 5000, "sliding_window") },
			wantType:  EventSessionCompact,
			wantLevel: LevelInfo,
			check: func(t *testing.T, e *Event) {
				if e.SessionID != "sess-123" || e.Details["tokens_saved"] != 5000 || e.Details["compaction_strategy"] != "sliding_window" {
					t.Errorf("unexpected event fields: %+v", e)
				}
			},
		},
		{
			name:      "LogAgentAction",
			call:      func(l *Logger) { l.LogAgentAction(ctx, "agent-123", "process_message", "test action", map[string]any{"key": "value"}, "session-key") },
			wantType:  EventAgentAction,
			wantLevel: LevelInfo,
			check: func(t *testing.T, e *Event) {
				if e.AgentID != "agent-123" || e.Action != "process_message" || e.Details["description"] != "test action" {
					t.Errorf("unexpected event fields: %+v", e)
				}
			},
		},
		{
			name:      "LogAgentAction nil details",
			call:      func(l *Logger) { l.LogAgentAction(ctx, "agent-123", "process_message", "test action", nil, "session-key") },
			wantType:  EventAgentAction,
			wantLevel: LevelInfo,
			check: func(t *testing.T, e *Event) {
				if e.Details["description"] != "test action" {
					t.Errorf("expected description to survive a nil details map, got %+v", e.Details)
				}
			},
		},
		{
			name: "LogError",
			call: func(l *Logger) {
				l.LogError(ctx, EventAgentError, "error_action", "something went wrong", map[string]any{"context": "test context"}, "session-key")
			},
			wantType:  EventAgentError,
			wantLevel: LevelError,
			check: func(t *testing.T, e *Event) {
				if e.Error != "something went wrong" || e.Details["context"] != "test context" {
					t.Errorf("unexpected event fields: %+v", e)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := newBufferedLogger(Config{
				Enabled:           true,
				Level:             LevelDebug,
				IncludeToolInput:  true,
				IncludeToolOutput: true,
				MaxFieldSize:      1024,
			})

			tt.call(logger)

			event := recvEvent(t, logger.buffer)
			if event.Type != tt.wantType {
				t.Errorf("expected type %s, got %s", tt.wantType, event.Type)
			}
			if event.Level != tt.wantLevel {
				t.Errorf("expected level %s, got %s", tt.wantLevel, event.Level)
			}
			tt.check(t, event)
		})
	}
}

// =============================================================================
// 3. Async/Buffered Writing Tests
// =============================================================================

func TestLogger_AsyncBufferedWrite(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "async_test.log")

	logger, err := NewLogger(Config{
		Enabled: true, Output: "file:" + logPath, Format: FormatJSON, Level: LevelInfo,
		BufferSize: 100, FlushInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	for i := 0; i < 10; i++ {
		logger.Log(context.Background(), &Event{Type: EventAgentAction, Level: LevelInfo, Action: "test_action"})
	}
	time.Sleep(100 * time.Millisecond)
	if err := logger.Close(); err != nil {
		t.Errorf("error closing logger: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected log file to have content")
	}
}

func TestLogger_BufferFlushOnClose(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "flush_on_close.log")

	logger, err := NewLogger(Config{
		Enabled: true, Output: "file:" + logPath, Format: FormatJSON, Level: LevelInfo,
		BufferSize: 1000, FlushInterval: 10 * time.Second, // long enough it never auto-flushes
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	for i := 0; i < 5; i++ {
		logger.Log(context.Background(), &Event{Type: EventAgentAction, Level: LevelInfo, Action: "test_action"})
	}
	if err := logger.Close(); err != nil {
		t.Errorf("error closing logger: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected log file to have content after close")
	}
}

func TestLogger_ConcurrentWriteSafety(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "concurrent_test.log")

	logger, err := NewLogger(Config{
		Enabled: true, Output: "file:" + logPath, Format: FormatJSON, Level: LevelInfo,
		BufferSize: 1000, FlushInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	var wg sync.WaitGroup
	const goroutines, eventsEach = 10, 100
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < eventsEach; j++ {
				logger.Log(context.Background(), &Event{
					Type: EventAgentAction, Level: LevelInfo, Action: "concurrent_test",
					Details: map[string]any{"goroutine": id, "event": j},
				})
			}
		}(i)
	}
	wg.Wait()

	if err := logger.Close(); err != nil {
		t.Errorf("error closing logger: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	expectedMin := goroutines * eventsEach * 80 / 100 // tolerate sampling/buffer drops
	if len(lines) < expectedMin {
		t.Errorf("expected at least %d log entries, got %d", expectedMin, len(lines))
	}
}

func TestLogger_BufferFullBehavior(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "buffer_full_test.log")

	logger, err := NewLogger(Config{
		Enabled: true, Output: "file:" + logPath, Level: LevelInfo,
		BufferSize: 1, FlushInterval: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			logger.Log(context.Background(), &Event{Type: EventAgentAction, Level: LevelInfo, Action: "overflow_test"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Error("Log() blocked when buffer was full")
	}
}

// =============================================================================
// 4. Session-Bound Logger Tests
// =============================================================================

func TestSessionLogger_WithSessionKey(t *testing.T) {
	mainLogger := newBufferedLogger(Config{Enabled: true, Level: LevelInfo})
	sessionLogger := mainLogger.WithSessionKey("agent:main:telegram:123")
	if sessionLogger.sessionKey != "agent:main:telegram:123" {
		t.Errorf("expected session key to be set, got %s", sessionLogger.sessionKey)
	}
}

func TestSessionLogger_AllMethodsInheritSessionKey(t *testing.T) {
	mainLogger := newBufferedLogger(Config{
		Enabled: true, Level: LevelDebug, IncludeToolInput: true, IncludeToolOutput: true, MaxFieldSize: 1024,
	})
	sessionKey := "agent:main:slack:channel123"
	sessionLogger := mainLogger.WithSessionKey(sessionKey)
	ctx := context.Background()

	sessionLogger.LogToolInvocation(ctx, "tool1", "call-1", []byte(`{}`))
	sessionLogger.LogToolCompletion(ctx, "tool1", "call-1", true, "done", time.Second)
	sessionLogger.LogToolDenied(ctx, "tool2", "call-2", "policy", "deny_policy")
	sessionLogger.LogPermissionDecision(ctx, true, "read", "/file", "access", "allowed")
	sessionLogger.LogAgentHandoff(ctx, "agent1", "agent2", "task", "full", 1)
	sessionLogger.LogAgentAction(ctx, "agent1", "action", "desc", nil)
	sessionLogger.LogError(ctx, EventAgentError, "error_action", "error message", nil)

	const wantEvents = 7
	for i := 0; i < wantEvents; i++ {
		event := recvEvent(t, mainLogger.buffer)
		if event.SessionKey != sessionKey {
			t.Errorf("event %d: expected SessionKey %s, got %s", i, sessionKey, event.SessionKey)
		}
	}
}

// =============================================================================
// 5. Distributed Tracing Tests
// =============================================================================

func TestLogger_TraceIDAndSpanIDInclusion(t *testing.T) {
	logger := newBufferedLogger(Config{Enabled: true, Level: LevelInfo})
	logger.Log(context.Background(), &Event{
		Type: EventAgentAction, Level: LevelInfo, Action: "test", TraceID: "trace-123", SpanID: "span-456",
	})

	event := recvEvent(t, logger.buffer)
	if event.TraceID != "trace-123" {
		t.Errorf("expected TraceID 'trace-123', got %s", event.TraceID)
	}
	if event.SpanID != "span-456" {
		t.Errorf("expected SpanID 'span-456', got %s", event.SpanID)
	}
}

func TestLogger_DurationTracking(t *testing.T) {
	logger := newBufferedLogger(Config{Enabled: true, Level: LevelInfo})
	duration := 2500 * time.Millisecond
	logger.Log(context.Background(), &Event{Type: EventToolCompletion, Level: LevelInfo, Action: "test", Duration: duration})

	if event := recvEvent(t, logger.buffer); event.Duration != duration {
		t.Errorf("expected Duration %v, got %v", duration, event.Duration)
	}
}

// =============================================================================
// 6. Utility Function Tests
// =============================================================================

func TestHashString(t *testing.T) {
	hash1 := hashString("test input")
	hash2 := hashString("test input")
	if hash1 != hash2 {
		t.Errorf("expected same hash for same input, got %s and %s", hash1, hash2)
	}

	if hash3 := hashString("different input"); hash1 == hash3 {
		t.Error("expected different hash for different input")
	}
	if len(hash1) != 16 {
		t.Errorf("expected hash length 16, got %d", len(hash1))
	}
}

func TestLogger_SlogLevel(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "DEBUG"}, {LevelInfo, "INFO"}, {LevelWarn, "WARN"}, {LevelError, "ERROR"}, {"unknown", "INFO"},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			logger := &Logger{config: Config{Level: tt.level}}
			if slogLvl := logger.slogLevel(); slogLvl.String() != tt.expected {
				t.Errorf("expected slog level %s, got %s", tt.expected, slogLvl.String())
			}
		})
	}
}

// =============================================================================
// 7. WriteEvent Tests
// =============================================================================

func TestLogger_WriteEventAllFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "write_event_test.log")

	logger, err := NewLogger(Config{
		Enabled: true, Output: "file:" + logPath, Format: FormatJSON, Level: LevelDebug,
		BufferSize: 10, FlushInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	logger.Log(context.Background(), &Event{
		ID: "test-id", Type: EventToolCompletion, Level: LevelInfo, Timestamp: time.Now(),
		SessionID: "sess-123", SessionKey: "agent:main:telegram:user", AgentID: "agent-456",
		ToolName: "web_search", ToolCallID: "call-789", Action: "tool_completed",
		Duration: time.Second, Error: "some error", UserID: "user-111", Channel: "telegram",
		TraceID: "trace-222", SpanID: "span-333", ParentEventID: "parent-444",
		Details: map[string]any{"custom_key": "custom_value"},
	})
	time.Sleep(100 * time.Millisecond)
	logger.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	content := string(data)

	for _, field := range []string{
		"audit_id", "audit_type", "action", "session_id", "session_key",
		"agent_id", "tool_name", "tool_call_id", "user_id", "channel",
		"trace_id", "span_id", "parent_event_id", "duration_ms", "error",
	} {
		if !strings.Contains(content, field) {
			t.Errorf("expected field %s in log output", field)
		}
	}
}
