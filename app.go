package fastboot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/256dpi/serve"
)

// IndexFile is the name of the document every App must contain.
const IndexFile = "index.html"

// App is an in-memory copy of a built application: its index document,
// assets and the environment configuration embedded in the index.
type App struct {
	name string

	mu     sync.RWMutex
	files  map[string][]byte
	before []byte
	after  []byte
	config map[string]any
}

// Create builds an App named name from a map of slash-separated paths to
// file contents. files must contain index.html with the application's
// `<meta name="NAME/config/environment">` tag.
func Create(name string, files map[string]string) (*App, error) {
	b := make(map[string][]byte, len(files))
	for p, content := range files {
		b[strings.TrimPrefix(p, "/")] = []byte(content)
	}
	index, ok := b[IndexFile]
	if !ok {
		return nil, errors.New("fastboot: missing " + IndexFile)
	}

	tag := fmt.Sprintf(`<meta name="%s/config/environment" content="`, name)
	start := bytes.Index(index, []byte(tag))
	if start < 0 {
		return nil, fmt.Errorf("fastboot: config meta tag for %q not found", name)
	}
	start += len(tag)
	end := bytes.IndexByte(index[start:], '"')
	if end < 0 {
		return nil, fmt.Errorf("fastboot: config meta tag for %q is not terminated", name)
	}
	end += start

	raw, err := url.QueryUnescape(string(index[start:end]))
	if err != nil {
		return nil, fmt.Errorf("fastboot: unescaping config: %w", err)
	}
	var config map[string]any
	if err := json.Unmarshal([]byte(raw), &config); err != nil {
		return nil, fmt.Errorf("fastboot: decoding config: %w", err)
	}
	if config == nil {
		config = map[string]any{}
	}

	return &App{
		name:   name,
		files:  b,
		before: bytes.Clone(index[:start]),
		after:  bytes.Clone(index[end:]),
		config: config,
	}, nil
}

// MustCreate is like Create but panics on error.
func MustCreate(name string, files map[string]string) *App {
	app, err := Create(name, files)
	if err != nil {
		panic(err)
	}
	return app
}

// Files reads every regular file below dir in fsys into a map suitable
// for Create. Keys are relative to dir.
func Files(fsys fs.FS, dir string) (map[string]string, error) {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		dir = "."
	}
	files := make(map[string]string)
	err := fs.WalkDir(fsys, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		buf, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		if dir != "." {
			p = strings.TrimPrefix(p, dir+"/")
		}
		files[p] = string(buf)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fastboot: reading %s: %w", dir, err)
	}
	return files, nil
}

// MustFiles is like Files but panics on error.
func MustFiles(fsys fs.FS, dir string) map[string]string {
	files, err := Files(fsys, dir)
	if err != nil {
		panic(err)
	}
	return files
}

// Name returns the application name.
func (a *App) Name() string {
	return a.name
}

// Config returns a copy of the environment configuration.
func (a *App) Config() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return maps.Clone(a.config)
}

// Set stores a top-level configuration value and rewrites the config
// meta tag of the index document.
func (a *App) Set(key string, value any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	config := maps.Clone(a.config)
	config[key] = value
	data, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("fastboot: encoding config: %w", err)
	}
	escaped := url.QueryEscape(string(data))

	index := make([]byte, 0, len(a.before)+len(escaped)+len(a.after))
	index = append(index, a.before...)
	index = append(index, escaped...)
	index = append(index, a.after...)

	a.config = config
	a.files[IndexFile] = index
	return nil
}

// MustSet is like Set but panics on error.
func (a *App) MustSet(key string, value any) {
	if err := a.Set(key, value); err != nil {
		panic(err)
	}
}

// File returns the contents of the file at p and whether it exists.
func (a *App) File(p string) ([]byte, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.files[strings.TrimPrefix(p, "/")]
	return b, ok
}

// Index returns the current index document.
func (a *App) Index() []byte {
	b, _ := a.File(IndexFile)
	return b
}

// Clone returns an independent copy of the App.
func (a *App) Clone() *App {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return &App{
		name:   a.name,
		files:  maps.Clone(a.files),
		before: a.before,
		after:  a.after,
		config: maps.Clone(a.config),
	}
}

// ServeHTTP serves the App's files by path, answering every unknown
// path with the index document.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	p := strings.TrimPrefix(r.URL.Path, "/")
	content, ok := a.File(p)
	if !ok || p == "" {
		p = IndexFile
		content = a.Index()
	}
	a.writeFile(w, r, p, content)
}

func (a *App) writeFile(w http.ResponseWriter, r *http.Request, p string, content []byte) {
	w.Header().Set("Content-Type", serve.MimeTypeByExtension(path.Ext(p), true))
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(content)
}
