package executor

import (
	"context"
	"sort"

	"github.com/phonectl/phonectl/internal/action"
	"github.com/phonectl/phonectl/internal/device"
)

// Screen is the pixel size relative coordinates are scaled to.
type Screen struct {
	Width  int
	Height int
}

// Handler applies one named action to the device. A returned error marks
// the step failed.
type Handler func(ctx context.Context, dev device.Device, a action.Action, screen Screen) (string, error)

// Registry 管理所有已注册的动作处理器
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry 创建空的注册表
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds or replaces the handler for name.
func (r *Registry) Register(name string, h Handler) {
	r.handlers[name] = h
}

// Get 根据名称获取处理器
func (r *Registry) Get(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Names 返回所有已注册的动作名（排序）
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry 创建包含所有内置动作的注册表
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(action.NameLaunch, handleLaunch)
	r.Register(action.NameTap, handleTap)
	r.Register(action.NameType, handleType)
	r.Register(action.NameTypeName, handleType)
	r.Register(action.NameSwipe, handleSwipe)
	r.Register(action.NameBack, handleBack)
	r.Register(action.NameHome, handleHome)
	r.Register(action.NameDoubleTap, handleDoubleTap)
	r.Register(action.NameLongPress, handleLongPress)
	r.Register(action.NameWait, handleWait)
	r.Register(action.NameTakeover, handleNoop("manual step completed"))
	r.Register(action.NameNote, handleNoop("noted"))
	r.Register(action.NameCallAPI, handleNoop("api call recorded"))
	r.Register(action.NameInteract, handleNoop("user interaction required"))
	return r
}
