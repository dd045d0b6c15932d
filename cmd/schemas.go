package cmd

import (
	"github.com/google/jsonschema-go/jsonschema"
)

// Custom schema builders that create LM Studio-compatible schemas
// These avoid using complex additionalProperties objects

func buildStartSessionSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           map[string]*jsonschema.Schema{},
		AdditionalProperties: nil,
	}
}

func buildEnqueueChunkSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"session_id": {
				Type:        "string",
				Description: "Session ID returned by narrator_start_session",
			},
			"chunk_index": {
				Type:        "integer",
				Description: "Zero-based position of this chunk in the narration; chunks play in index order regardless of submission order",
				Minimum:     &[]float64{0}[0],
			},
			"text": {
				Type:        "string",
				Description: "The text of this chunk",
			},
			"speed": {
				Type:        "number",
				Description: "Optional speed multiplier (0.5-2.0) for this chunk only; omit to use the global speed",
				Minimum:     &[]float64{0.5}[0],
				Maximum:     &[]float64{2.0}[0],
			},
		},
		Required:             []string{"session_id", "chunk_index", "text"},
		AdditionalProperties: nil,
	}
}

func buildStreamSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"session_id": {
				Type:        "string",
				Description: "Session ID returned by narrator_start_session",
			},
			"text": {
				Type:        "string",
				Description: "The text to narrate as one progressive stream",
			},
			"speed": {
				Type:        "number",
				Description: "Optional speed multiplier (0.5-2.0) for this stream only; omit to use the global speed",
				Minimum:     &[]float64{0.5}[0],
				Maximum:     &[]float64{2.0}[0],
			},
		},
		Required:             []string{"session_id", "text"},
		AdditionalProperties: nil,
	}
}

func buildSetSpeedSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"speed": {
				Type:        "number",
				Description: "Narration speed multiplier (0.5-2.0, default: 1.0); out-of-range values are clamped",
				Minimum:     &[]float64{0.5}[0],
				Maximum:     &[]float64{2.0}[0],
			},
		},
		Required:             []string{"speed"},
		AdditionalProperties: nil,
	}
}

func buildEmptySchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           map[string]*jsonschema.Schema{},
		AdditionalProperties: nil,
	}
}
