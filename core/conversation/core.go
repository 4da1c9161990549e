package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/m3rciful/volunteerbot/core/logger"
)

// Middleware runs before every event is dispatched. A non-nil error drops the event.
type Middleware func(ctx context.Context, ev Event, c *Core) error

// MessageFunc handles free text outside of any flow.
type MessageFunc func(ctx context.Context, ev *MessageEvent, c *Core) error

// FlowErrorFunc is told about a failed entry or stage after the session was flushed.
type FlowErrorFunc func(ctx context.Context, ev Event, c *Core, cause error) error

// CommandFunc handles a command outside of the script registry, e.g. cancel.
type CommandFunc func(ctx context.Context, ev *CommandEvent, c *Core) error

// CommandHandler is what transports bind to a command endpoint.
type CommandHandler func(ctx context.Context, ev *CommandEvent) error

// DefaultCancelCommand aborts the current flow.
const DefaultCancelCommand = "cancel"

// Option configures a Core.
type Option func(*Core)

// WithNoFlow sets the handler for free text when the user is not in a flow.
func WithNoFlow(fn MessageFunc) Option {
	return func(c *Core) { c.noFlow = fn }
}

// WithFlowError sets the handler invoked after an entry or stage failed.
func WithFlowError(fn FlowErrorFunc) Option {
	return func(c *Core) { c.flowError = fn }
}

// WithCallbackMiss replaces the default handling of callbacks no impact matched.
// The default removes the message that carried the button.
func WithCallbackMiss(fn CallbackFunc) Option {
	return func(c *Core) { c.callbackMiss = fn }
}

// WithCancelCommand sets the command that aborts the active flow and an optional reply handler.
// An empty command disables cancelling.
func WithCancelCommand(command string, fn CommandFunc) Option {
	return func(c *Core) {
		c.cancelCommand = strings.TrimPrefix(strings.TrimSpace(command), "/")
		c.onCancel = fn
	}
}

// Core routes events to scripts and impacts and owns their shared components.
type Core struct {
	store Store
	locks *userLocks

	mu          sync.RWMutex
	components  map[string]any
	scripts     []*Script
	byName      map[string]*Script
	byCommand   map[string]*Script
	stageIndex  map[string]*Script
	impacts     []*Impact
	middlewares []Middleware

	noFlow        MessageFunc
	flowError     FlowErrorFunc
	callbackMiss  CallbackFunc
	cancelCommand string
	onCancel      CommandFunc
}

// New builds a Core backed by store. A nil store falls back to NewMemoryStore.
func New(store Store, opts ...Option) *Core {
	if store == nil {
		store = NewMemoryStore()
	}
	c := &Core{
		store:         store,
		locks:         newUserLocks(),
		components:    make(map[string]any),
		byName:        make(map[string]*Script),
		byCommand:     make(map[string]*Script),
		stageIndex:    make(map[string]*Script),
		cancelCommand: DefaultCancelCommand,
		callbackMiss: func(ctx context.Context, ev *CallbackEvent, _ *Core) error {
			if ev.MessageID == 0 {
				return nil
			}
			return ev.Dismiss(ctx)
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Sessions exposes the session store.
func (c *Core) Sessions() Store { return c.store }

// Session returns the current session of a user.
func (c *Core) Session(ctx context.Context, userID int64) Session {
	return c.store.Get(ctx, userID)
}

// RegisterComponent stores v under name, replacing any previous value.
func (c *Core) RegisterComponent(name string, v any) *Core {
	c.mu.Lock()
	_, replaced := c.components[name]
	c.components[name] = v
	c.mu.Unlock()

	if replaced {
		logger.Warn(context.Background(), logger.ComponentWire, "component.replaced", slog.String("name", name))
	}
	return c
}

// Component returns the component registered under name, or nil.
func (c *Core) Component(name string) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.components[name]
}

// ComponentAs returns the component registered under name when it has type T.
func ComponentAs[T any](c *Core, name string) (T, bool) {
	v, ok := c.Component(name).(T)
	return v, ok
}

// AddScript registers a script. Names and commands must be unique.
func (c *Core) AddScript(s *Script) error {
	if s == nil || s.name == "" {
		return fmt.Errorf("conversation: script without name")
	}
	if s.entry.Command == "" || s.entry.Handler == nil {
		return fmt.Errorf("conversation: script %s has no entry point", s.name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.byName[s.name]; dup {
		return fmt.Errorf("%w: name %q", ErrDuplicateScript, s.name)
	}
	if _, dup := c.byCommand[s.entry.Command]; dup || s.entry.Command == c.cancelCommand {
		return fmt.Errorf("%w: command %q", ErrDuplicateScript, s.entry.Command)
	}
	c.scripts = append(c.scripts, s)
	c.byName[s.name] = s
	c.byCommand[s.entry.Command] = s
	return nil
}

// AddImpact appends an impact. Impacts are tried in registration order.
func (c *Core) AddImpact(im *Impact) error {
	if im == nil {
		return fmt.Errorf("conversation: nil impact")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.impacts {
		if existing.name == im.name {
			return fmt.Errorf("%w: %q", ErrDuplicateImpact, im.name)
		}
	}
	c.impacts = append(c.impacts, im)
	return nil
}

// AddMiddleware appends mw to the chain run before every dispatch.
func (c *Core) AddMiddleware(mw Middleware) *Core {
	if mw == nil {
		return c
	}
	c.mu.Lock()
	c.middlewares = append(c.middlewares, mw)
	c.mu.Unlock()
	return c
}

// Scripts returns registered scripts in registration order.
func (c *Core) Scripts() []*Script {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Script(nil), c.scripts...)
}

// Impacts returns registered impacts in match order.
func (c *Core) Impacts() []*Impact {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Impact(nil), c.impacts...)
}

// BuildStageIndex maps every stage key to its script. Calling it again rebuilds the index.
func (c *Core) BuildStageIndex() *Core {
	c.mu.Lock()
	index := make(map[string]*Script)
	for _, s := range c.scripts {
		for _, key := range s.Stages() {
			index[key] = s
		}
	}
	c.stageIndex = index
	scripts := len(c.scripts)
	c.mu.Unlock()

	logger.Info(context.Background(), logger.ComponentWire, "flow.index",
		slog.Int("scripts", scripts),
		slog.Int("stages", len(index)),
	)
	return c
}

// Stages returns the indexed stage keys, sorted.
func (c *Core) Stages() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.stageIndex))
	for k := range c.stageIndex {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ScriptForStage returns the script owning stage, or nil.
func (c *Core) ScriptForStage(stage string) *Script {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stageIndex[stage]
}

// BindCommands hands every script command and the cancel command to bind.
func (c *Core) BindCommands(bind func(command string, h CommandHandler)) {
	if bind == nil {
		return
	}
	for _, s := range c.Scripts() {
		bind(s.entry.Command, c.HandleCommand)
	}
	if c.cancelCommand != "" {
		bind(c.cancelCommand, c.HandleCommand)
	}
}

// CancelCommand returns the command that aborts flows, or "" when disabled.
func (c *Core) CancelCommand() string { return c.cancelCommand }
