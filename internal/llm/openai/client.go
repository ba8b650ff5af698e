package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tradefin/docintake/constants"
	"github.com/tradefin/docintake/internal/llm"
)

// ClassifyPage implements llm.Classifier using text-only chat/completions.
func (c *Client) ClassifyPage(ctx context.Context, req llm.ClassifyRequest) (llm.Classification, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	if len(req.Candidates) == 0 {
		req.Candidates = constants.KnownFormTypes
	}

	c.log.Info("llm.classify.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"page", req.PageNumber,
		"text_len", len(req.OCRText),
		"candidates", len(req.Candidates),
	)

	schema := llm.BuildClassificationJSONSchema(req.Candidates)
	sys := buildSystemPrompt(req.Candidates)
	user := buildUserPrompt(req)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": sys},
			{"role": "user", "content": user + "\n\nReturn ONLY JSON that matches the provided schema."},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, httpErr := c.post(ctx, endpoint, body)
	if httpErr != nil {
		c.log.Error("llm.classify.http_error",
			"req_id", rid, "error", httpErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Classification{}, nil, httpErr
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return llm.Classification{}, raw, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return llm.Classification{}, raw, fmt.Errorf("no choices in openai response")
	}
	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	rawContent := []byte(content)

	if err := llm.ValidateJSONAgainstSchema(schema, rawContent); err != nil {
		c.log.Error("llm.classify.schema_validation_failed",
			"req_id", rid, "error", err, "content", content,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Classification{}, rawContent, fmt.Errorf("schema validation failed: %w", err)
	}

	var out llm.Classification
	if err := json.Unmarshal(rawContent, &out); err != nil {
		return llm.Classification{}, rawContent, fmt.Errorf("unmarshal classification: %w", err)
	}

	// A SWIFT reference refines a generic answer into the precise type.
	if out.SwiftMessageRef != "" && strings.EqualFold(out.FormType, "SWIFT Message") {
		out.FormType = "SWIFT Message " + out.SwiftMessageRef
	}

	c.log.Info("llm.classify.ok",
		"req_id", rid,
		"form_type", out.FormType,
		"confidence", out.ModelConfidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, rawContent, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai http error: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.Warn("openai response body close error", "error", err)
		}
	}()

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai status %d: %s", resp.StatusCode, buf.String())
	}
	return buf.Bytes(), nil
}

func buildSystemPrompt(candidates []string) string {
	parts := []string{
		"You classify single pages of scanned trade finance documents.",
		"Return ONLY JSON that matches the JSON Schema provided.",
	}
	if len(candidates) > 0 {
		parts = append(parts, "Allowed form types (enum): "+strings.Join(candidates, ", ")+".")
	}
	parts = append(parts,
		"If the page is a SWIFT message, also set 'swift_message_ref' to its message type, e.g. MT700.",
		"If the page fits none of the types, answer UNCLASSIFIED.",
		"Never output null. If a field is not present, omit it.",
	)
	return strings.Join(parts, " ")
}

func buildUserPrompt(req llm.ClassifyRequest) string {
	var b strings.Builder
	b.WriteString("Filename: ")
	b.WriteString(req.FilenameHint)
	fmt.Fprintf(&b, "\nPage number: %d", req.PageNumber)
	b.WriteString("\n\nOCR text (first ~3k chars):\n")
	if len(req.OCRText) > 3000 {
		b.WriteString(req.OCRText[:3000])
	} else {
		b.WriteString(req.OCRText)
	}
	return b.String()
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
