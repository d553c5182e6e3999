package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/clauseguard/clauseguard/internal/errors"
	"github.com/clauseguard/clauseguard/internal/observe"
)

// Schema is the minimal JSON-Schema surface embedded in structured-output
// prompts: top-level property types plus the required list. Each agent
// declares its schema as a fixed value next to its output record.
type Schema struct {
	Properties map[string]string // field name -> JSON type ("string", "integer", "boolean", "array", "number", "object")
	Required   []string
}

// promptJSON renders the schema as the format example shown to the model.
func (s Schema) promptJSON() string {
	props := make(map[string]map[string]string, len(s.Properties))
	for name, typ := range s.Properties {
		props[name] = map[string]string{"type": typ}
	}
	doc := map[string]any{
		"type":       "object",
		"properties": props,
		"required":   s.Required,
	}
	b, _ := json.MarshalIndent(doc, "", "  ")
	return string(b)
}

// validate checks a parsed object against the schema: required keys must be
// present and property types must match where declared.
func (s Schema) validate(obj map[string]any) error {
	for _, key := range s.Required {
		if _, ok := obj[key]; !ok {
			return fmt.Errorf("missing required field %q", key)
		}
	}
	for name, want := range s.Properties {
		v, ok := obj[name]
		if !ok || v == nil {
			continue
		}
		if !typeMatches(want, v) {
			return fmt.Errorf("field %q: expected %s, got %T", name, want, v)
		}
	}
	return nil
}

func typeMatches(want string, v any) bool {
	switch want {
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "integer", "number":
		_, ok := v.(float64)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}

const schemaInstruction = `CRITICAL: Respond with ONLY a valid JSON object. No explanations, no schema definitions.

Example format:
%s

Your response must be ACTUAL DATA matching this structure, not the schema itself.`

// CompleteStructured runs a completion that must return a JSON object
// matching schema, decoding it into out (a struct pointer with matching
// json tags). Parse and validation failures are retried up to the
// configured limit with a one-second pause between attempts; budget errors
// abort at once.
func (c *Client) CompleteStructured(ctx context.Context, messages []Message, schema Schema, out any, modelType ModelType, temperature float32) error {
	ctx, span := observe.Start(ctx, "Structured LLM Call")
	var err error
	defer func() { span.End(err) }()

	enhanced := withSchemaPrompt(messages, schema)

	maxRetries := c.maxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		var raw string
		raw, err = c.Complete(ctx, enhanced, modelType, temperature, 800)
		if err != nil {
			// Model fallback already happened inside Complete; only parse
			// and validation failures are retried here.
			return err
		}

		if err = decodeStructured(raw, schema, out); err == nil {
			c.logger.Debug("structured output parsed", "attempt", attempt+1)
			return nil
		}

		c.logger.Warn("structured parse failed", "attempt", attempt+1, "max", maxRetries, "error", truncateErr(err))
		lastErr = err

		if attempt < maxRetries-1 {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				err = ctx.Err()
				return err
			}
		}
	}

	err = errors.StructuredParse(lastErr, fmt.Sprintf("failed to parse structured output after %d attempts", maxRetries))
	return err
}

// withSchemaPrompt appends the schema instruction to the system message,
// inserting one when the conversation has none.
func withSchemaPrompt(messages []Message, schema Schema) []Message {
	instruction := fmt.Sprintf(schemaInstruction, schema.promptJSON())

	enhanced := make([]Message, len(messages))
	copy(enhanced, messages)

	if len(enhanced) > 0 && enhanced[0].Role == RoleSystem {
		enhanced[0].Content += "\n\n" + instruction
		return enhanced
	}
	return append([]Message{{Role: RoleSystem, Content: instruction}}, enhanced...)
}

// decodeStructured strips optional code fences, parses the JSON object,
// validates it against the schema and decodes it into out.
func decodeStructured(raw string, schema Schema, out any) error {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var obj map[string]any
	if err := json.Unmarshal([]byte(cleaned), &obj); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.validate(obj); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("decode into %T: %w", out, err)
	}
	if v, ok := out.(validatable); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("output validation: %w", err)
		}
	}
	return nil
}

// validatable lets output records enforce constraints the schema surface
// cannot express (numeric ranges, non-empty arrays). Failures are retried
// like any other parse failure.
type validatable interface {
	Validate() error
}
