package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaTypeScalars(t *testing.T) {
	assert.Equal(t, "string", SchemaType(map[string]any{"type": "string"}))
	assert.Equal(t, "number", SchemaType(map[string]any{"type": "number"}))
	assert.Equal(t, "boolean", SchemaType(map[string]any{"type": "boolean"}))
	assert.Equal(t, "object", SchemaType(map[string]any{"type": "object"}))
	assert.Equal(t, "unknown", SchemaType(map[string]any{}))
	assert.Equal(t, "unknown", SchemaType(map[string]any{"type": "nonsense"}))
}

func TestSchemaTypeArrayRecursive(t *testing.T) {
	schema := map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}
	assert.Equal(t, "array<string>", SchemaType(schema))
}

func TestSchemaTypeNestedArray(t *testing.T) {
	schema := map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "number"},
		},
	}
	assert.Equal(t, "array<array<number>>", SchemaType(schema))
}

func TestSchemaTypeEnumTrumpsType(t *testing.T) {
	schema := map[string]any{
		"enum": []any{"red", "green", "blue"},
	}
	assert.Equal(t, "enum: red | green | blue", SchemaType(schema))
}

func TestFormatSchemaNonObjectYieldsEmpty(t *testing.T) {
	assert.Empty(t, FormatSchema(map[string]any{"type": "string"}))
	assert.Empty(t, FormatSchema(map[string]any{"type": "object"}))
}

func TestFormatSchemaRequiredAndOptional(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number", "description": "first operand"},
			"b": map[string]any{"type": "number"},
		},
		"required": []any{"a"},
	}

	lines := FormatSchema(schema)
	joined := ""
	for _, l := range lines {
		joined += l + "\n"
	}
	assert.Contains(t, joined, "a (number, required)")
	assert.Contains(t, joined, "first operand")
	assert.Contains(t, joined, "b (number, optional)")
}

func TestFormatSchemaIsPure(t *testing.T) {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"x": map[string]any{"type": "string"}},
		"required":   []any{},
	}
	first := FormatSchema(schema)
	second := FormatSchema(schema)
	assert.Equal(t, first, second)
}
