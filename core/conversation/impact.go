package conversation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// CallbackFunc handles a button press.
type CallbackFunc func(ctx context.Context, ev *CallbackEvent, c *Core) error

// Impact reacts to callback payloads that match its pattern.
type Impact struct {
	name      string
	signature *regexp.Regexp
	handler   CallbackFunc
}

// NewImpact compiles pattern and returns an Impact.
func NewImpact(name, pattern string, fn CallbackFunc) (*Impact, error) {
	if fn == nil {
		return nil, fmt.Errorf("impact %s: nil handler", name)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("impact %s: %w", name, err)
	}
	return &Impact{name: name, signature: re, handler: fn}, nil
}

// MustImpact is like NewImpact but panics on an invalid pattern.
func MustImpact(name, pattern string, fn CallbackFunc) *Impact {
	im, err := NewImpact(name, pattern, fn)
	if err != nil {
		panic(err)
	}
	return im
}

// Name returns the impact name.
func (i *Impact) Name() string { return i.name }

// Pattern returns the source of the signature expression.
func (i *Impact) Pattern() string { return i.signature.String() }

// Match reports whether payload triggers this impact.
func (i *Impact) Match(payload string) bool {
	return i.signature.MatchString(payload)
}

func (i *Impact) run(ctx context.Context, ev *CallbackEvent, c *Core) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("impact %s panic: %v", i.name, r)
		}
	}()
	return i.handler(ctx, ev, c)
}

// SplitPayload splits an "action=value" payload at the first '='.
func SplitPayload(payload string) (action, value string) {
	action, value, _ = strings.Cut(payload, "=")
	return action, value
}
