package updates

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/logger"
)

var ErrInvalidName = errors.New("updates: invalid file name")

// File is one downloadable update artifact.
type File struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Catalog serves the configured update directory. The listing is cached
// and invalidated by fsnotify events rather than re-read per request.
type Catalog struct {
	dir string

	mu    sync.Mutex
	files []File
	stale bool

	watcher *fsnotify.Watcher
}

func NewCatalog(dir string) (*Catalog, error) {
	c := &Catalog{dir: dir, stale: true}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	c.watcher = watcher
	go c.watch()

	return c, nil
}

func (c *Catalog) watch() {
	for {
		select {
		case _, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			c.mu.Lock()
			c.stale = true
			c.mu.Unlock()
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("update directory watch error", map[string]any{
				"error": err.Error(),
			})
		}
	}
}

// Close stops the directory watcher.
func (c *Catalog) Close() error {
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}

// List returns the current update files sorted by name.
func (c *Catalog) List() ([]File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.stale {
		return c.files, nil
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}

	files := make([]File, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, File{
			Name:     entry.Name(),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	c.files = files
	c.stale = false
	return files, nil
}

// Path resolves a catalog file name to its on-disk path, rejecting
// anything that would escape the update directory.
func (c *Catalog) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", ErrInvalidName
	}

	path := filepath.Join(c.dir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", os.ErrNotExist
	}
	return path, nil
}

// Read returns the content of a catalog file (TCP download path).
func (c *Catalog) Read(name string) ([]byte, error) {
	path, err := c.Path(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}
