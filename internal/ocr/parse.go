package ocr

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// defaultModelConfidence is used for lines a model returns without a score.
const defaultModelConfidence = 0.8

// transcriptionPrompt is shared by the LLM backends.
const transcriptionPrompt = `You are an OCR engine. Transcribe every line of text visible in the image, top to bottom, exactly as printed. Do not summarize, translate or correct the text.

For each line, estimate how confident you are in the transcription as a number between 0 and 1.

Return ONLY valid JSON in this exact format:
{
  "lines": [
    {"text": "first line", "confidence": 0.95}
  ]
}

Important:
- Keep labels and their values on the same line when they are printed on the same line
- Keep column spacing in tables as two or more spaces
- If the image has no text, return {"lines": []}
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// linesSchema is the shape a transcription must have before it is trusted.
var linesSchema = jsonschema.MustCompileString("lines.json", `{
  "type": "object",
  "required": ["lines"],
  "properties": {
    "lines": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["text"],
        "properties": {
          "text": {"type": "string"},
          "confidence": {"type": "number"}
        }
      }
    }
  }
}`)

type modelLine struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

type modelResponse struct {
	Lines []modelLine `json:"lines"`
}

// parseLinesJSON parses a transcription returned by an LLM backend.
func parseLinesJSON(text string) (Recognition, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return Recognition{}, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return Recognition{}, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var raw any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return Recognition{}, fmt.Errorf("unmarshaling json: %w", err)
	}
	if err := linesSchema.Validate(raw); err != nil {
		return Recognition{}, fmt.Errorf("json does not match schema: %w", err)
	}

	var resp modelResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return Recognition{}, fmt.Errorf("unmarshaling json: %w", err)
	}

	lines := make([]Line, 0, len(resp.Lines))
	for _, l := range resp.Lines {
		conf := defaultModelConfidence
		if l.Confidence != nil {
			conf = *l.Confidence
		}
		lines = append(lines, Line{Text: l.Text, Confidence: conf})
	}
	return NewRecognition(lines), nil
}
