// Package sse parses an upstream OpenAI-compatible SSE byte stream into the
// typed event union from Design Notes §9 ("Represent upstream streaming as a
// typed stream of events... produced by a small parser over SSE bytes; the
// dispatcher consumes this stream and decides transitions explicitly rather
// than relying on exception control flow"). Every upstream egress call is
// OpenAI-wire-format per §6.2 regardless of which ingress dialect the client
// used, so one parser covers every provider.
package sse

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/songquanpeng/smart-router-gateway/internal/chatmodel"
)

const doneMarker = "[DONE]"

// openaiChunk is the minimal shape of one `chat.completion.chunk` line.
type openaiChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *chatmodel.Usage `json:"usage"`
	Error *midStreamError  `json:"error"`
}

type midStreamError struct {
	Message    string `json:"message"`
	Code       any    `json:"code"`
	RetryAfter int    `json:"retry_after"`
}

// Parse reads r line by line and emits the StreamEvents each data line carries, terminating
// with EventEnd once "[DONE]" is seen or the reader is exhausted.
func Parse(r io.Reader, emit func(chatmodel.StreamEvent)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == doneMarker {
			emit(chatmodel.StreamEvent{Kind: chatmodel.EventEnd})
			return nil
		}

		var chunk openaiChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue // malformed line: skip rather than abort the whole stream
		}

		if chunk.Error != nil {
			emit(chatmodel.StreamEvent{
				Kind:         chatmodel.EventUpstreamError,
				ErrorMessage: chunk.Error.Message,
				ErrorCode:    codeAsInt(chunk.Error.Code),
				RetryAfterS:  chunk.Error.RetryAfter,
			})
			continue
		}

		if chunk.Usage != nil {
			emit(chatmodel.StreamEvent{Kind: chatmodel.EventUsage, Usage: *chunk.Usage})
		}

		for _, c := range chunk.Choices {
			if c.Delta.Content != "" {
				emit(chatmodel.StreamEvent{Kind: chatmodel.EventChunk, ContentDelta: c.Delta.Content})
			}
		}
	}
	emit(chatmodel.StreamEvent{Kind: chatmodel.EventEnd})
	return scanner.Err()
}

func codeAsInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	default:
		return 0
	}
}

// EncodeDataLine wraps an arbitrary JSON-marshalable payload as one SSE
// "data: ..." line with the trailing blank-line separator.
func EncodeDataLine(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(raw)+8)
	out = append(out, "data: "...)
	out = append(out, raw...)
	out = append(out, '\n', '\n')
	return out, nil
}

// DoneLine is the terminating SSE sentinel the OpenAI dialect's stream ends
// with; the Anthropic and Gemini streams end without it.
func DoneLine() []byte {
	return []byte("data: " + doneMarker + "\n\n")
}
