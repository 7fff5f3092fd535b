package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phonectl/phonectl/internal/action"
	"github.com/phonectl/phonectl/internal/device"
	"github.com/phonectl/phonectl/internal/provider"
)

var (
	// ErrMalformedResponse matches every *MalformedResponseError.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrBackendUnavailable is returned when the backend keeps failing
	// after all retries, or fails with a non-retryable error.
	ErrBackendUnavailable = errors.New("model backend unavailable")
)

// MalformedResponseError carries a response with no parsable action.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func (e *MalformedResponseError) Is(target error) bool { return target == ErrMalformedResponse }

// State is what the model sees for one step.
type State struct {
	// Task is sent with the first message of a conversation only.
	Task       string
	Screenshot *device.Screenshot
	CurrentApp string

	// Feedback describes the previous step's outcome, or a hint.
	Feedback string
}

// Proposal is the model's next action.
type Proposal struct {
	Action   action.Action
	Thinking string
	Raw      string
	Usage    provider.Usage
}

// Client keeps the conversation for one session and asks the provider
// for one action per call.
type Client struct {
	provider     provider.Provider
	cfg          Config
	retry        RetryPolicy
	logger       *slog.Logger
	onDelta      func(string)
	contextLimit int
	now          func() time.Time

	messages []provider.Message
}

// Option configures a Client.
type Option func(*Client)

// WithRetry sets the retry policy.
func WithRetry(p RetryPolicy) Option { return func(c *Client) { c.retry = p } }

// WithLogger sets the logger used for retry warnings.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// WithStreamHandler receives streamed text as it arrives.
func WithStreamHandler(fn func(string)) Option { return func(c *Client) { c.onDelta = fn } }

// WithContextLimit bounds the conversation size in estimated tokens.
func WithContextLimit(tokens int) Option { return func(c *Client) { c.contextLimit = tokens } }

// NewClient returns a client sending requests through p.
func NewClient(p provider.Provider, cfg Config, opts ...Option) *Client {
	c := &Client{
		provider:     p,
		cfg:          cfg,
		retry:        DefaultRetryPolicy(),
		logger:       slog.Default(),
		contextLimit: 64000,
		now:          time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Config returns the client's model configuration.
func (c *Client) Config() Config { return c.cfg }

// Reset clears the conversation.
func (c *Client) Reset() { c.messages = nil }

// Messages returns a copy of the conversation.
func (c *Client) Messages() []provider.Message {
	return append([]provider.Message(nil), c.messages...)
}

// Propose sends the current state and returns the next action.
//
// Errors: ctx errors as is, ErrBackendUnavailable when the backend cannot
// answer, *MalformedResponseError when the reply holds no action. A
// malformed reply stays in the conversation so the next step can correct it.
func (c *Client) Propose(ctx context.Context, st State) (*Proposal, error) {
	first := len(c.messages) == 0
	if first && strings.TrimSpace(st.Task) == "" {
		return nil, errors.New("task is required for the first proposal")
	}

	user := provider.Message{Role: provider.RoleUser}
	if st.Screenshot != nil && st.Screenshot.Base64 != "" {
		user.Content = append(user.Content, provider.ImageContent(st.Screenshot.Base64))
	}
	user.Content = append(user.Content, provider.TextContent(userText(st, first, c.cfg.Lang)))

	c.messages = append(c.messages, user)
	stripOldImages(c.messages)

	resp, err := c.chat(ctx)
	if err != nil {
		// Drop the unanswered turn so the conversation stays alternating.
		c.messages = c.messages[:len(c.messages)-1]
		return nil, err
	}

	// The screenshot has been seen; keep only the text.
	c.messages[len(c.messages)-1] = c.messages[len(c.messages)-1].WithoutImages()

	thinking, actionText := splitResponse(resp.Text)
	p := &Proposal{Thinking: thinking, Raw: resp.Text, Usage: resp.Usage}

	a, perr := action.Parse(actionText)
	if perr != nil {
		c.messages = append(c.messages, provider.Message{
			Role:    provider.RoleAssistant,
			Content: []provider.Content{provider.TextContent(resp.Text)},
		})
		c.messages = TrimContext(c.messages, c.contextLimit)
		return p, &MalformedResponseError{Raw: resp.Text, Err: perr}
	}
	p.Action = a

	c.messages = append(c.messages, provider.Message{
		Role: provider.RoleAssistant,
		Content: []provider.Content{provider.TextContent(
			"<think>" + thinking + "</think>\n<answer>" + a.String() + "</answer>")},
	})
	c.messages = TrimContext(c.messages, c.contextLimit)
	return p, nil
}

func (c *Client) chat(ctx context.Context) (*provider.Response, error) {
	systemPrompt := c.cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = SystemPrompt(c.cfg.Lang, c.now())
	}
	temp, topP, freq := c.cfg.Temperature, c.cfg.TopP, c.cfg.FrequencyPenalty
	req := &provider.ChatRequest{
		Model:            c.cfg.Model,
		Messages:         c.messages,
		SystemPrompt:     systemPrompt,
		MaxTokens:        c.cfg.MaxTokens,
		Temperature:      &temp,
		TopP:             &topP,
		FrequencyPenalty: &freq,
	}

	attempts := max(c.retry.MaxAttempts, 1)
	var lastErr error
	for attempt := range attempts {
		resp, err := provider.Collect(ctx, c.provider, req, c.onDelta)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if !isRetryableError(err) {
			break
		}
		if attempt == attempts-1 {
			break
		}
		d := c.retry.delay(attempt)
		c.logger.Warn("model request failed", "provider", c.provider.Name(),
			"detail", formatRetryMessage(attempt, attempts, d, err))
		if err := sleepWithContext(ctx, d); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, lastErr)
}

// splitResponse separates the reasoning from the action call. The action
// starts at the first finish(message= or do(action= marker, or inside
// <answer> tags.
func splitResponse(content string) (thinking, act string) {
	for _, marker := range []string{"finish(message=", "do(action="} {
		if i := strings.Index(content, marker); i >= 0 {
			return cleanThinking(content[:i]), strings.TrimSuffix(strings.TrimSpace(content[i:]), "</answer>")
		}
	}
	if before, after, ok := strings.Cut(content, "<answer>"); ok {
		return cleanThinking(before), strings.TrimSpace(strings.ReplaceAll(after, "</answer>", ""))
	}
	return "", strings.TrimSpace(content)
}

func cleanThinking(s string) string {
	r := strings.NewReplacer("<think>", "", "</think>", "", "<answer>", "")
	return strings.TrimSpace(r.Replace(s))
}
