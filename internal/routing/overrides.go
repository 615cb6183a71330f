package routing

import (
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/langcen/portal/internal/cache"
	"github.com/langcen/portal/internal/domain/user"
)

// FileOverrides serves role→destination overrides from a JSON file of
// the form {"admin": "admin_home"}. The file is re-read at most once
// per TTL, so operators can adjust redirects without a deploy.
type FileOverrides struct {
	path  string
	cache *cache.Cache[map[user.Role]Route]
	log   *slog.Logger
}

func NewFileOverrides(path string, ttl time.Duration, log *slog.Logger) *FileOverrides {
	return &FileOverrides{
		path:  path,
		cache: cache.New[map[user.Role]Route](ttl),
		log:   log,
	}
}

// Map returns the current override mapping. A missing or malformed
// file is not fatal: the resolver just falls back to the built-in
// defaults, and the problem is logged once per TTL window.
func (f *FileOverrides) Map() map[user.Role]Route {
	if f.path == "" {
		return nil
	}

	m, err := f.cache.GetOrLoad("overrides", f.load)

	if err != nil {
		f.log.Warn("role redirect overrides unreadable", "path", f.path, "err", err)
		// Cache the empty result too, to avoid a disk hit per request.
		f.cache.Set("overrides", nil)
		return nil
	}

	return m
}

func (f *FileOverrides) load() (map[user.Role]Route, error) {
	b, err := os.ReadFile(f.path)

	if err != nil {
		return nil, err
	}

	var raw map[string]string

	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}

	out := make(map[user.Role]Route, len(raw))

	for role, dest := range raw {
		if role == "" || dest == "" {
			continue
		}
		out[user.Role(role)] = Route(dest)
	}

	return out, nil
}
