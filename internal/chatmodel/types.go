// Package chatmodel is the canonical internal chat-completion request/
// response shape every ingress dialect translates to and from (§4.12,
// Design Notes §9: "Modelled as a sealed set of ingress translators
// producing one canonical internal request; routing is dialect-agnostic").
// Field shapes are grounded on the teacher's relay/model package
// (misc.go's Usage/Error, tool.go's tool-call types), trimmed to what the
// routing core and the three supported ingress dialects actually need.
package chatmodel

// Role is a canonical chat role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPart is one piece of a multi-part message (text or image).
type ContentPart struct {
	Type     string `json:"type"` // "text" | "image_url"
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// Message is one canonical chat message.
type Message struct {
	Role    Role          `json:"role"`
	Content string        `json:"content,omitempty"`
	Parts   []ContentPart `json:"parts,omitempty"`
	Name    string        `json:"name,omitempty"`
}

// ToolDefinition is a canonical function/tool declaration, merging OpenAI's
// `functions`/`tools`, Anthropic's `tools[].input_schema`, and Gemini's
// `tools.function_declarations` (§4.12).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Request is the canonical internal chat request C10 routes and dispatches.
type Request struct {
	Model            string           `json:"model"`
	Messages         []Message        `json:"messages"`
	System           string           `json:"system,omitempty"`
	Stream           bool             `json:"stream,omitempty"`
	MaxTokens        int              `json:"max_tokens,omitempty"`
	Temperature      float64          `json:"temperature,omitempty"`
	HasTemperature   bool             `json:"-"`
	Tools            []ToolDefinition `json:"tools,omitempty"`
	RequiredCapabilities []string     `json:"required_capabilities,omitempty"`
	Strategy         string           `json:"strategy,omitempty"`
	MinContextLength int              `json:"min_context_length,omitempty"`
	MaxCostPerKTokens float64         `json:"max_cost_per_1k,omitempty"`
	PreferLocal      bool             `json:"prefer_local,omitempty"`
	ExcludeProviders []string         `json:"exclude_providers,omitempty"`
}

// Usage mirrors the teacher's relay/model.Usage, trimmed to the fields this
// gateway actually bills and logs.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice is one completion candidate in a non-streaming response.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// Response is the canonical internal chat response, before dialect-specific
// re-encoding by the shim that received the original request.
type Response struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// EventKind distinguishes the variants of the typed streaming-event union
// described in Design Notes §9, replacing exception-driven mid-stream error
// handling with an explicit sum type.
type EventKind int

const (
	EventChunk EventKind = iota
	EventUsage
	EventUpstreamError
	EventEnd
)

// StreamEvent is one element of the typed stream a provider's SSE bytes are
// parsed into: Chunk(bytes) | Usage(tokens) | UpstreamError(code,msg,retry_after?) | End.
type StreamEvent struct {
	Kind         EventKind
	ContentDelta string // set when Kind == EventChunk
	Usage        Usage  // set when Kind == EventUsage
	ErrorCode    int    // set when Kind == EventUpstreamError
	ErrorMessage string
	RetryAfterS  int
}
