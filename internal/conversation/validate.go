package conversation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gowebpki/jcs"
	"github.com/kaptinlin/jsonschema"
)

// ErrStructural marks a malformed message or analysis payload. Payloads
// failing structural checks are rejected before any processing.
var ErrStructural = errors.New("conversation: structural error")

const analysisSchema = `{
  "type": "object",
  "required": ["innovation_score", "feasibility_rating"],
  "properties": {
    "id": {"type": "string"},
    "search_query": {"type": "string"},
    "innovation_score": {"type": "integer", "minimum": 0, "maximum": 100},
    "feasibility_rating": {"enum": ["low", "medium", "high"]},
    "top_gaps": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["title"],
        "properties": {
          "title": {"type": "string"},
          "description": {"type": "string"},
          "score": {"type": "number", "minimum": 0}
        }
      }
    },
    "competitors": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string"},
          "description": {"type": "string"}
        }
      }
    },
    "action_plan": {
      "type": "object",
      "properties": {
        "phases": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["name"],
            "properties": {"name": {"type": "string"}}
          }
        }
      }
    }
  }
}`

var compiledAnalysisSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.NewCompiler().Compile([]byte(analysisSchema))
})

// DecodeAnalysis validates raw JSON against the analysis schema and decodes it.
func DecodeAnalysis(raw []byte) (Analysis, error) {
	if !json.Valid(raw) {
		return Analysis{}, fmt.Errorf("%w: analysis payload is not valid JSON", ErrStructural)
	}
	schema, err := compiledAnalysisSchema()
	if err != nil {
		return Analysis{}, fmt.Errorf("conversation: compile analysis schema: %w", err)
	}
	result := schema.ValidateJSON(raw)
	if !result.IsValid() {
		return Analysis{}, fmt.Errorf("%w: analysis payload: %v", ErrStructural, result.Errors)
	}

	var a Analysis
	if err := json.Unmarshal(raw, &a); err != nil {
		return Analysis{}, fmt.Errorf("%w: analysis payload: %w", ErrStructural, err)
	}
	if err := ValidateAnalysis(a); err != nil {
		return Analysis{}, err
	}
	return a, nil
}

// ValidateAnalysis checks the invariants of an already-decoded analysis.
func ValidateAnalysis(a Analysis) error {
	var errs []error
	if a.InnovationScore < 0 || a.InnovationScore > 100 {
		errs = append(errs, fmt.Errorf("innovation score %d out of range [0,100]", a.InnovationScore))
	}
	switch a.FeasibilityRating {
	case FeasibilityLow, FeasibilityMedium, FeasibilityHigh:
	default:
		errs = append(errs, fmt.Errorf("unknown feasibility rating %q", a.FeasibilityRating))
	}
	for i, g := range a.TopGaps {
		if g.Score < 0 {
			errs = append(errs, fmt.Errorf("top_gaps[%d]: negative score", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrStructural, errors.Join(errs...))
	}
	return nil
}

// ValidateMessages checks that every message carries a known role.
func ValidateMessages(msgs []Message) error {
	for i, m := range msgs {
		if !m.Role.Valid() {
			return fmt.Errorf("%w: message %d has unknown role %q", ErrStructural, i, m.Role)
		}
	}
	return nil
}

// Fingerprint returns a stable digest of a's content: the SHA-256 of its
// RFC 8785 canonical JSON form. Equal analyses always share a fingerprint
// regardless of field order in their source payloads.
func Fingerprint(a Analysis) (string, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("conversation: marshal analysis: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("conversation: canonicalize analysis: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
