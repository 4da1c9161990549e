package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"
)

type handlerConfig struct {
	level    slog.Leveler
	writer   *lineWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler renders records as one flat line per event. Groups become
// dotted key prefixes and durations become integer "_ms" fields.
type structuredHandler struct {
	cfg    handlerConfig
	prefix string
	preset fields
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = slices.Clone(defaultKeyOrder)
	}
	return &structuredHandler{cfg: cfg, preset: fields{}}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errors.New("logger: writer not initialized")
	}
	jsonOut := h.cfg.format == formatJSON

	f := make(fields, len(h.preset)+r.NumAttrs()+8)
	for k, v := range h.preset {
		f[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		f.add(h.prefix, a)
		return true
	})
	if ctx != nil {
		for _, a := range MetaFrom(ctx).Attrs() {
			f.setDefault(a.Key, a.Value.Any())
		}
	}

	ts := r.Time.UTC()
	f["ts"] = ts.Truncate(time.Millisecond).Format("2006-01-02T15:04:05.000Z07:00")
	f["level"] = levelName(r.Level)
	if jsonOut {
		f["ts_unix_nano"] = ts.UnixNano()
	}
	if rid := f.str("rid"); rid != "" {
		if short := CompactRID(rid); short != rid {
			f["rid"] = short
			if jsonOut {
				f.setDefault("rid_full", rid)
			}
		}
	}
	if f.str("event") == "" {
		f["event"] = cmpOr(r.Message, "unknown")
	}
	if f.str("component") == "" {
		f["component"] = ComponentApp
	}
	f.applyEnums()
	f.prune()

	var buf bytes.Buffer
	if err := f.encode(&buf, h.cfg.keyOrder, jsonOut); err != nil {
		return err
	}
	buf.WriteByte('\n')
	return h.cfg.writer.Write(buf.Bytes())
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.preset = make(fields, len(h.preset)+len(attrs))
	for k, v := range h.preset {
		clone.preset[k] = v
	}
	for _, a := range attrs {
		clone.preset.add(h.prefix, a)
	}
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

func cmpOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// fields is the flattened attribute set of one record.
type fields map[string]any

func (f fields) add(prefix string, a slog.Attr) {
	key := joinKey(prefix, a.Key)
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			f.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if val, ok := scalar(v); ok {
		if d, isDur := val.(time.Duration); isDur {
			f[msKey(key)] = RoundMS(d).Milliseconds()
			return
		}
		f[key] = val
	}
}

func (f fields) setDefault(key string, v any) {
	if _, ok := f[key]; !ok {
		f[key] = v
	}
}

func (f fields) str(key string) string {
	switch v := f[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (f fields) applyEnums() {
	for key, e := range enums {
		raw, ok := f[key].(string)
		if !ok {
			continue
		}
		if v, keep := e.normalize(raw); keep {
			f[key] = v
		} else {
			delete(f, key)
		}
	}
}

func (f fields) prune() {
	for k, v := range f {
		if v == nil || v == "" {
			delete(f, k)
		}
	}
}

// encode writes the keys named in order first, then the rest alphabetically.
func (f fields) encode(buf *bytes.Buffer, order []string, asJSON bool) error {
	keys := make([]string, 0, len(f))
	for _, k := range order {
		if _, ok := f[k]; ok && !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	head := len(keys)
	for k := range f {
		if !slices.Contains(keys[:head], k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys[head:])

	if asJSON {
		buf.WriteByte('{')
	}
	for i, k := range keys {
		if i > 0 {
			if asJSON {
				buf.WriteByte(',')
			} else {
				buf.WriteByte(' ')
			}
		}
		if !asJSON {
			buf.WriteString(k)
			buf.WriteByte('=')
			buf.WriteString(kvValue(f[k]))
			continue
		}
		val, err := json.Marshal(f[k])
		if err != nil {
			return fmt.Errorf("logger: encode %s: %w", k, err)
		}
		buf.WriteString(strconv.Quote(k))
		buf.WriteByte(':')
		buf.Write(val)
	}
	if asJSON {
		buf.WriteByte('}')
	}
	return nil
}

// scalar reduces v to a JSON-friendly Go value. Durations are returned as
// time.Duration so the caller can rename the key.
func scalar(v slog.Value) (any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return v.Bool(), true
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		return v.Uint64(), true
	case slog.KindFloat64:
		return v.Float64(), true
	case slog.KindDuration:
		return v.Duration(), true
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return nil, false
	case error:
		return x.Error(), true
	case fmt.Stringer:
		return x.String(), true
	default:
		return fmt.Sprint(x), true
	}
}

// msKey makes every duration key end in "_ms".
func msKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}

func kvValue(v any) string {
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	if strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}
