package openai

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/form-digitizer/internal/common"
	"github.com/joseph-ayodele/form-digitizer/internal/llm"
)

const providerName = "openai"

// Analyze implements llm.DocumentAnalyzer using chat/completions with the
// form attached as an image (or file part for PDFs).
func (c *Client) Analyze(ctx context.Context, image []byte, instructions string) (string, error) {
	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.New().String()
	}
	start := time.Now()

	dataURL, mimeType := llm.DataURL(image)
	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"provider", providerName,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"mime", mimeType,
		"image_bytes", len(image),
		"prompt_len", len(instructions),
	)

	attachment := map[string]any{
		"type":      "image_url",
		"image_url": map[string]any{"url": dataURL, "detail": "high"},
	}
	if mimeType == "application/pdf" {
		attachment = map[string]any{
			"type": "file",
			"file": map[string]any{"filename": "form.pdf", "file_data": dataURL},
		}
	}

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"max_tokens":  c.cfg.MaxTokens,
		"messages": []map[string]any{
			{"role": "system", "content": "You transcribe paper forms. Copy values exactly as written."},
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": instructions},
				attachment,
			}},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, _, err := llm.SendJSON(common.WithRequestID(ctx, rid), c.http, endpoint, body, headers, c.logger)
	if err != nil {
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", llm.Classify(providerName, err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
				Refusal string `json:"refusal"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", common.ProviderUnavailable("decode openai response", err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Warn("llm.extract.no_choices",
			"req_id", rid,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", common.ProviderEmpty("no choices in openai response")
	}
	msg := cc.Choices[0].Message
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		c.logger.Warn("llm.extract.empty_content",
			"req_id", rid,
			"refusal", msg.Refusal,
			"finish_reason", cc.Choices[0].FinishReason,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", common.ProviderEmpty("openai returned empty content")
	}

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"provider", providerName,
		"finish_reason", cc.Choices[0].FinishReason,
		"text_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}
