package monitor

import (
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"sync"
)

// TemplateProvider abstracts template loading and execution.
// Production uses EmbeddedTemplateProvider; tests may substitute their own.
type TemplateProvider interface {
	ExecuteTemplate(w io.Writer, name string, data interface{}) error
}

var templateFuncs = template.FuncMap{
	"commas": commas,
	"meters": formatMeters,
}

func commas(v any) string {
	switch n := v.(type) {
	case int:
		return FormatWithCommas(int64(n))
	case int64:
		return FormatWithCommas(n)
	case uint64:
		return FormatWithCommas(int64(n))
	case float64:
		return FormatWithCommas(int64(n))
	}
	return fmt.Sprint(v)
}

// EmbeddedTemplateProvider parses templates from fsys on first use and
// caches them.
type EmbeddedTemplateProvider struct {
	fsys    fs.FS
	baseDir string

	mu    sync.Mutex
	cache map[string]*template.Template
}

// NewEmbeddedTemplateProvider creates a provider reading baseDir in fsys.
func NewEmbeddedTemplateProvider(fsys fs.FS, baseDir string) *EmbeddedTemplateProvider {
	return &EmbeddedTemplateProvider{
		fsys:    fsys,
		baseDir: baseDir,
		cache:   make(map[string]*template.Template),
	}
}

// GetTemplate returns the parsed template called name.
func (p *EmbeddedTemplateProvider) GetTemplate(name string) (*template.Template, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.cache[name]; ok {
		return t, nil
	}
	content, err := fs.ReadFile(p.fsys, path.Join(p.baseDir, name))
	if err != nil {
		return nil, err
	}
	t, err := template.New(name).Funcs(templateFuncs).Parse(string(content))
	if err != nil {
		return nil, err
	}
	p.cache[name] = t
	return t, nil
}

// ExecuteTemplate loads and executes a template.
func (p *EmbeddedTemplateProvider) ExecuteTemplate(w io.Writer, name string, data interface{}) error {
	t, err := p.GetTemplate(name)
	if err != nil {
		return err
	}
	return t.Execute(w, data)
}
