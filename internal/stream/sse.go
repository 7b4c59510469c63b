// Package stream implements the provider-agnostic StreamDecoder: it turns a
// provider-specific byte transport (SSE or newline-delimited JSON) into a
// uniform sequence of core.StreamChunk, per the four dialects in the
// external interface table. Dialect-specific extraction is the only
// provider knowledge this package contains; everything downstream of
// Decode sees only core.StreamChunk.
package stream

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent is one dispatched Server-Sent-Events block: an optional event
// type line plus the joined data lines that preceded the terminating blank
// line.
type sseEvent struct {
	Type string
	Data string
}

// scanSSE reads a Server-Sent-Events transport from r, calling emit for each
// dispatched event in order. Comment lines (prefixed ":") and any field
// other than "event:"/"data:" are ignored, matching the keep-alive handling
// every provider's SSE transport relies on. emit returning true stops the
// scan early (used once a dialect recognizes its end sentinel).
func scanSSE(r io.Reader, emit func(sseEvent) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var evType string
	var dataLines []string

	flush := func() bool {
		if evType == "" && len(dataLines) == 0 {
			return false
		}
		ev := sseEvent{Type: evType, Data: strings.Join(dataLines, "\n")}
		evType = ""
		dataLines = nil
		return emit(ev)
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if flush() {
				return nil
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			evType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// unrecognized field, ignore
		}
	}
	if flush() {
		return nil
	}
	return scanner.Err()
}
