package storage

import (
	"fmt"
	"strings"

	logx "gunter/pkg/logx"
)

// Open returns the configured store, or (nil, nil) when storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	log = log.With(logx.String("comp", "storage"))
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "none":
		return nil, nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", driver)
	}
}
