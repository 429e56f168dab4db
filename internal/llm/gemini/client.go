package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/form-digitizer/internal/common"
	"github.com/joseph-ayodele/form-digitizer/internal/llm"
)

const providerName = "gemini"

// Config for the Gemini generateContent client.
type Config struct {
	APIKey      string // if empty, falls back to env GOOGLE_API_KEY
	BaseURL     string // default https://generativelanguage.googleapis.com/v1beta
	Model       string // default gemini-1.5-flash
	Temperature float32
	Timeout     time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GOOGLE_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Analyze implements llm.DocumentAnalyzer with one generateContent call carrying
// the instructions and the image inline.
func (c *Client) Analyze(ctx context.Context, image []byte, instructions string) (string, error) {
	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.New().String()
	}
	start := time.Now()
	mimeType := llm.SniffMIME(image)

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"provider", providerName,
		"model", c.cfg.Model,
		"mime", mimeType,
		"image_bytes", len(image),
		"prompt_len", len(instructions),
	)

	body := map[string]any{
		"contents": []map[string]any{{
			"role": "user",
			"parts": []part{
				{Text: instructions},
				{InlineData: &inlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(image)}},
			},
		}},
		"generationConfig": map[string]any{
			"temperature": c.cfg.Temperature,
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/models/" + url.PathEscape(c.cfg.Model) + ":generateContent"
	headers := map[string]string{"x-goog-api-key": c.cfg.APIKey}
	raw, _, err := llm.SendJSON(common.WithRequestID(ctx, rid), c.http, endpoint, body, headers, c.logger)
	if err != nil {
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", llm.Classify(providerName, err)
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		c.logger.Error("llm.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", common.ProviderUnavailable("decode gemini response", err)
	}
	if br := gr.PromptFeedback.BlockReason; br != "" {
		c.logger.Warn("llm.extract.blocked", "req_id", rid, "block_reason", br)
		return "", common.ProviderEmpty("gemini blocked the request: " + br)
	}

	var b strings.Builder
	finish := ""
	if len(gr.Candidates) > 0 {
		finish = gr.Candidates[0].FinishReason
		for _, p := range gr.Candidates[0].Content.Parts {
			b.WriteString(p.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		c.logger.Warn("llm.extract.empty_content",
			"req_id", rid,
			"candidates", len(gr.Candidates),
			"finish_reason", finish,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", common.ProviderEmpty("gemini returned no text")
	}

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"provider", providerName,
		"finish_reason", finish,
		"text_len", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}
