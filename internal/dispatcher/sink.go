package dispatcher

// StreamSink receives canonical stream events as the dispatcher relays an
// upstream SSE response chunk-by-chunk (§4.10's streaming contract). It is
// dialect-agnostic: the router layer's shim re-encodes each call into the
// client's ingress dialect, keeping C10 unaware of OpenAI/Anthropic/Gemini
// wire shapes (§4.12: "these shims never route on their own").
type StreamSink interface {
	// OnChunk is called for every content delta, in arrival order.
	OnChunk(delta string)
	// OnUpstreamError is called when the upstream emits a mid-stream error
	// event (§4.10: "providers occasionally emit data: {"error": ...}
	// mid-stream"); the stream continues unless Dispatch itself returns an
	// error afterward.
	OnUpstreamError(code int, message string, retryAfterS int)
}
