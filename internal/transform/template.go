package transform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
)

// Templates renders named text/template files from a directory. Files are
// parsed on first use and cached.
type Templates struct {
	dir   string
	mu    sync.Mutex
	cache map[string]*template.Template
}

func NewTemplates(dir string) *Templates {
	return &Templates{dir: dir, cache: map[string]*template.Template{}}
}

var templateFuncs = template.FuncMap{
	"jsonify": func(v any) (string, error) {
		raw, err := json.Marshal(v)
		return string(raw), err
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"default": func(def, v any) any {
		if v == nil || v == "" {
			return def
		}
		return v
	},
}

func (t *Templates) load(name string) (*template.Template, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tpl, ok := t.cache[name]; ok {
		return tpl, nil
	}
	if t.dir == "" {
		return nil, fmt.Errorf("template %s: no templates directory configured", name)
	}
	path := filepath.Join(t.dir, filepath.Clean("/"+name))
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", name, err)
	}
	tpl, err := template.New(name).Funcs(templateFuncs).Option("missingkey=zero").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", name, err)
	}
	t.cache[name] = tpl
	return tpl, nil
}

// Render executes the named template with data as dot.
func (t *Templates) Render(name string, data map[string]any) (string, error) {
	tpl, err := t.load(name)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("template %s: %w", name, err)
	}
	return buf.String(), nil
}
