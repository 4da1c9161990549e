// Package render turns the bot's message views into text.
package render

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"text/template"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/m3rciful/volunteerbot/core/logger"
)

//go:embed views/*.txt
var views embed.FS

const ext = ".txt"

var funcs = template.FuncMap{
	"join": strings.Join,
	"lock": func(closed bool) string {
		if closed {
			return "🔒"
		}
		return "🔓"
	},
	"check": func(ok bool) string {
		if ok {
			return "✔️"
		}
		return "❌"
	},
}

// Renderer executes views found in a filesystem. Parsed views are kept in an LRU.
type Renderer struct {
	fsys   fs.FS
	dir    string
	parsed *lru.Cache[string, *template.Template]
}

// New returns a Renderer over the embedded views.
func New(size int) (*Renderer, error) {
	return NewFS(views, "views", size)
}

// NewFS returns a Renderer reading views from dir inside fsys.
func NewFS(fsys fs.FS, dir string, size int) (*Renderer, error) {
	if size <= 0 {
		size = 64
	}
	c, err := lru.New[string, *template.Template](size)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return &Renderer{fsys: fsys, dir: dir, parsed: c}, nil
}

// Render executes the view name with data. The ".txt" suffix is optional and
// surrounding whitespace is trimmed from the result.
func (r *Renderer) Render(name string, data any) (string, error) {
	name = strings.TrimSuffix(name, ext)
	tmpl, err := r.lookup(name)
	if err != nil {
		logger.Warn(context.Background(), logger.ComponentRender, "view.missing",
			slog.String("view", name),
			slog.String("err", err.Error()),
		)
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		logger.Warn(context.Background(), logger.ComponentRender, "view.execute",
			slog.String("view", name),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Names lists the available views without suffix.
func (r *Renderer) Names() []string {
	entries, err := fs.ReadDir(r.fsys, r.dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ext) {
			names = append(names, strings.TrimSuffix(e.Name(), ext))
		}
	}
	sort.Strings(names)
	return names
}

func (r *Renderer) lookup(name string) (*template.Template, error) {
	if t, ok := r.parsed.Get(name); ok {
		return t, nil
	}
	raw, err := fs.ReadFile(r.fsys, path.Join(r.dir, name+ext))
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	t, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	r.parsed.Add(name, t)
	return t, nil
}
