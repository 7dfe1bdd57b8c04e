package domain

import "encoding/json"

// ChatMessage is the provider-agnostic chat message shape used by the
// extraction prompt and the LLM integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseSchema names a JSON schema that structured-output providers must
// conform to.
type ResponseSchema struct {
	Name   string
	Schema json.RawMessage
}
