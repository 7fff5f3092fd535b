// Package provider 定义了所有视觉模型 provider 的统一接口和共享类型。
// 每个 provider adapter（openai.go, anthropic.go）实现 Provider 接口，
// 负责将各家 API 的 streaming 响应归一化为统一的 Event 序列。
package provider

import (
	"context"
)

// ── 消息类型 ──────────────────────────────────────────────────────────────────

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
)

// Content 是消息中的一个内容块
type Content struct {
	Type           ContentType
	Text           string
	ImageData      string // image: base64-encoded data
	ImageMediaType string // image: MIME type (e.g. "image/png")
}

// Message 是对话历史中的一条消息
type Message struct {
	Role    Role
	Content []Content
}

// TextContent builds a text block.
func TextContent(s string) Content {
	return Content{Type: ContentTypeText, Text: s}
}

// ImageContent builds a base64 PNG block.
func ImageContent(b64 string) Content {
	return Content{Type: ContentTypeImage, ImageData: b64, ImageMediaType: "image/png"}
}

// HasImage reports whether the message carries an image block.
func (m Message) HasImage() bool {
	for _, c := range m.Content {
		if c.Type == ContentTypeImage {
			return true
		}
	}
	return false
}

// WithoutImages returns a copy of m with image blocks removed.
func (m Message) WithoutImages() Message {
	out := Message{Role: m.Role}
	for _, c := range m.Content {
		if c.Type != ContentTypeImage {
			out.Content = append(out.Content, c)
		}
	}
	return out
}

// ── 请求类型 ──────────────────────────────────────────────────────────────────

// ChatRequest 是发送给 provider 的统一请求格式
type ChatRequest struct {
	Model            string
	Messages         []Message
	SystemPrompt     string
	MaxTokens        int
	Temperature      *float64
	TopP             *float64
	FrequencyPenalty *float64
}

// ── 事件类型（streaming 输出）────────────────────────────────────────────────

type EventType int

const (
	// EventTextDelta: 模型输出的文本增量
	EventTextDelta EventType = iota

	// EventDone: 本轮消息结束，附带 token 用量
	EventDone

	// EventError: 发生错误
	EventError
)

// Event 是 provider streaming 输出的统一事件
type Event struct {
	Type EventType

	// EventTextDelta
	TextDelta string

	// EventDone
	Usage *Usage

	// EventError
	Error error
}

// Usage 记录本次 API 调用的 token 消耗
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ── Provider 接口 ─────────────────────────────────────────────────────────────

// Provider 是所有模型 provider 的统一接口。
// 实现者负责：
// 1. 将统一 ChatRequest 转换为该 provider 的 API 请求格式（包括截图）
// 2. 将该 provider 的 streaming 响应转换为统一 Event 序列
type Provider interface {
	// Chat 发起 streaming 对话。
	// 返回的 channel 会持续发出 Event，直到 EventDone 或 EventError 后关闭。
	// 调用方必须消费完 channel，否则会导致 goroutine 泄漏。
	Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error)

	// Name 返回 provider 标识符，如 "openai", "autoglm", "anthropic"
	Name() string

	// DefaultModel 返回默认模型
	DefaultModel() string
}
