package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

// Payload limits.
const (
	DefaultMaxMessageSize = 64 << 10 // 64 KiB
	DefaultMaxJSONDepth   = 16
)

// Payload errors.
var (
	ErrMessageTooLarge = errors.New("message exceeds maximum size")
	ErrJSONTooDeep     = errors.New("JSON nesting exceeds maximum depth")
	ErrInvalidJSON     = errors.New("invalid JSON")
)

// StructureResult is the outcome of ValidateMessageStructure.
type StructureResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

const messageSchema = `{
  "type": "object",
  "required": ["content"],
  "properties": {
    "content": {"type": "string"},
    "conversation_id": {"type": "string"}
  }
}`

var compiledMessageSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.NewCompiler().Compile([]byte(messageSchema))
})

// ValidateMessageStructure checks that raw is a bounded JSON object whose
// content field exists and is a string. It never panics on malformed input.
func ValidateMessageStructure(raw []byte) StructureResult {
	if err := ValidateMessageSize(raw, 0); err != nil {
		return StructureResult{Error: err.Error()}
	}
	if len(bytes.TrimSpace(raw)) == 0 || !json.Valid(raw) {
		return StructureResult{Error: ErrInvalidJSON.Error()}
	}
	if err := ValidateJSONDepth(raw, 0); err != nil {
		return StructureResult{Error: err.Error()}
	}

	schema, err := compiledMessageSchema()
	if err != nil {
		return StructureResult{Error: fmt.Sprintf("message schema: %v", err)}
	}
	if result := schema.ValidateJSON(raw); !result.IsValid() {
		return StructureResult{Error: fmt.Sprintf("invalid message structure: %v", result.Errors)}
	}
	return StructureResult{Valid: true}
}

// ValidateMessageSize checks that data does not exceed limit bytes.
// If limit is <= 0, DefaultMaxMessageSize is used.
func ValidateMessageSize(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxMessageSize
	}
	if len(data) > limit {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, len(data), limit)
	}
	return nil
}

// ValidateJSONDepth rejects JSON nested deeper than limit levels.
// If limit is <= 0, DefaultMaxJSONDepth is used.
func ValidateJSONDepth(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxJSONDepth
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}
		switch tok {
		case json.Delim('{'), json.Delim('['):
			if depth++; depth > limit {
				return fmt.Errorf("%w: depth %d (max %d)", ErrJSONTooDeep, depth, limit)
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
}
