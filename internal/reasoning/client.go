package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/guilherme-santos/notifcal/internal"
)

const (
	defaultEndpoint = "https://api.openai.com/v1"
	defaultModel    = "gpt-4o-mini"
	defaultTimeout  = 30 * time.Second
	// attempts is how many times a malformed answer is asked again.
	attempts = 2
)

type Options struct {
	Endpoint   string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to an OpenAI compatible chat completions API to classify
// notifications and extract events from them.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
	validator  *validator
}

func NewClient(opts Options) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	v, err := newValidator()
	if err != nil {
		return nil, err
	}
	return &Client{
		endpoint:   endpoint,
		apiKey:     strings.TrimSpace(opts.APIKey),
		model:      model,
		httpClient: httpClient,
		logger:     logger,
		validator:  v,
	}, nil
}

// Classify reports whether text is worth extracting an event from.
func (c *Client) Classify(ctx context.Context, text string) (bool, error) {
	var answer struct {
		Relevant bool `json:"relevant"`
	}
	err := c.ask(ctx, "classify", classifyPrompt, text, func(content []byte) error {
		if err := validate(c.validator.classify, content); err != nil {
			return err
		}
		return json.Unmarshal(content, &answer)
	})
	if err != nil {
		return false, err
	}
	return answer.Relevant, nil
}

type extractedEvent struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	AllDay      bool   `json:"all_day"`
	StartDate   string `json:"start_date"`
	StartTime   string `json:"start_time"`
	EndDate     string `json:"end_date"`
	EndTime     string `json:"end_time"`
}

// Extract returns the event described by text, or nil when there is none.
// End fields the text does not state stay unknown.
func (c *Client) Extract(ctx context.Context, text string, receivedAt time.Time) (*internal.Draft, error) {
	var draft *internal.Draft
	err := c.ask(ctx, "extract", extractPrompt, extractUserMessage(text, receivedAt), func(content []byte) error {
		if err := validate(c.validator.extract, content); err != nil {
			return err
		}
		var answer struct {
			Event *extractedEvent `json:"event"`
		}
		if err := json.Unmarshal(content, &answer); err != nil {
			return err
		}
		if answer.Event == nil {
			draft = nil
			return nil
		}
		d, err := answer.Event.draft()
		if err != nil {
			return err
		}
		draft = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return draft, nil
}

func (e *extractedEvent) draft() (*internal.Draft, error) {
	d := &internal.Draft{
		Title:       strings.TrimSpace(e.Title),
		Description: strings.TrimSpace(e.Description),
		AllDay:      e.AllDay,
	}
	var err error
	if d.StartDate, err = internal.ParseDate(e.StartDate); err != nil {
		return nil, err
	}
	if d.EndDate, err = internal.ParseDate(e.EndDate); err != nil {
		return nil, err
	}
	if d.StartTime, err = internal.ParseClock(e.StartTime); err != nil {
		return nil, err
	}
	if d.EndTime, err = internal.ParseClock(e.EndTime); err != nil {
		return nil, err
	}
	d.Normalize()
	return d, nil
}

// ask sends one completion request and hands the answer to parse. A
// failed request or an answer parse rejects is retried once.
func (c *Client) ask(ctx context.Context, op, system, user string, parse func([]byte) error) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		content, err := c.complete(ctx, system, user)
		if err == nil {
			err = parse(content)
		}
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %s: %v", internal.ErrExtractionFailed, op, ctxErr)
		}
		lastErr = err
		c.logger.Warn("reasoning: malformed answer", "op", op, "attempt", attempt, "error", err)
	}
	return fmt.Errorf("%w: %s: %v", internal.ErrExtractionFailed, op, lastErr)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, system, user string) ([]byte, error) {
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	payload.ResponseFormat.Type = "json_object"
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status=%d message=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var completion chatResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return nil, fmt.Errorf("decoding completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("completion has no choices")
	}
	return []byte(completion.Choices[0].Message.Content), nil
}
