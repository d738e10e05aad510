package bridge

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildStoreFromDSN selects a correlation store by DSN scheme:
// postgres:// (or postgresql://) and memory://.
func BuildStoreFromDSN(dsn string) (CorrelationStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(parsed.Scheme)) {
	case "postgres", "postgresql":
		return NewPostgresStore(dsn)
	case "memory", "mem", "inmem":
		return NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store scheme: %s", parsed.Scheme)
	}
}
