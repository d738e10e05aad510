package bridge

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// StaticAdminList is a fixed allow-list, typically parsed from an
// environment variable. Matching is exact on the full user id.
type StaticAdminList []string

func (l StaticAdminList) IsAdmin(userID string) bool {
	for _, admin := range l {
		if admin == userID {
			return true
		}
	}
	return false
}

// ParseAdminList splits a comma-separated list of user ids, dropping empty
// entries.
func ParseAdminList(raw string) StaticAdminList {
	parts := strings.Split(raw, ",")
	list := make(StaticAdminList, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			list = append(list, trimmed)
		}
	}
	return list
}

// FileAdminList reads the allow-list from a YAML file (a plain sequence of
// user ids) and reloads it when the file changes, so operators can be added
// without restarting the bridge.
type FileAdminList struct {
	path    string
	log     *slog.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}

	mu    sync.RWMutex
	users map[string]struct{}
}

func NewFileAdminList(path string, logger *slog.Logger) (*FileAdminList, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrInvalidInput
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &FileAdminList{
		path: path,
		log:  logger,
		done: make(chan struct{}),
	}
	if err := l.reload(); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	l.watcher = watcher
	go l.watch()
	return l, nil
}

func (l *FileAdminList) IsAdmin(userID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.users[userID]
	return ok
}

func (l *FileAdminList) Close() error {
	close(l.done)
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

func (l *FileAdminList) reload() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return err
	}
	var entries []string
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return err
	}
	users := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if trimmed := strings.TrimSpace(entry); trimmed != "" {
			users[trimmed] = struct{}{}
		}
	}
	l.mu.Lock()
	l.users = users
	l.mu.Unlock()
	return nil
}

func (l *FileAdminList) watch() {
	for {
		select {
		case <-l.done:
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := l.reload(); err != nil {
				// Keep the previous list on a bad edit.
				l.log.Error("admin list reload failed", "path", l.path, "err", err)
				continue
			}
			l.log.Info("admin list reloaded", "path", l.path)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.log.Error("admin list watcher error", "path", l.path, "err", err)
		}
	}
}

// MultiAdminList combines allow-lists; a sender passing any one of them is
// an admin.
type MultiAdminList []AdminChecker

func (m MultiAdminList) IsAdmin(userID string) bool {
	for _, checker := range m {
		if checker != nil && checker.IsAdmin(userID) {
			return true
		}
	}
	return false
}
