package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/pisanocami/usercontextrecord-sub002/internal/ucr"
)

// DirStore reads configurations from YAML files laid out as
// <root>/<tenant>/<user>.yaml. Writes rewrite the whole file.
type DirStore struct {
	root   string
	logger *zap.Logger
	mu     sync.RWMutex
	now    func() time.Time
}

// NewDirStore creates a DirStore rooted at root. The directory must exist.
func NewDirStore(root string, logger *zap.Logger) (*DirStore, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("store root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store root %s is not a directory", root)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirStore{root: root, logger: logger, now: time.Now}, nil
}

// Active implements ConfigurationStore.
func (s *DirStore) Active(ctx context.Context, tenantID, userID string) (*ucr.Configuration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(tenantID, userID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, err := os.ReadFile(path)
	s.mu.RUnlock()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg, err := DecodeYAML(data)
	if err != nil {
		s.logger.Warn("configuration file rejected",
			zap.String("path", path),
			zap.Error(err))
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if cfg.TenantID == "" {
		cfg.TenantID = tenantID
	}
	if cfg.UserID == "" {
		cfg.UserID = userID
	}
	return cfg, nil
}

// SaveGovernance implements ConfigurationStore.
func (s *DirStore) SaveGovernance(ctx context.Context, tenantID, userID string, gov ucr.Governance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(tenantID, userID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	cfg, err := DecodeYAML(data)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	cfg.Governance = gov.Clone()
	cfg.UpdatedAt = s.now()

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}

	s.logger.Debug("governance saved",
		zap.String("tenant_id", tenantID),
		zap.String("user_id", userID),
		zap.String("status", string(gov.Status())))
	return nil
}

func (s *DirStore) path(tenantID, userID string) (string, error) {
	for _, part := range []string{tenantID, userID} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("invalid identity segment %q", part)
		}
	}
	return filepath.Join(s.root, tenantID, userID+".yaml"), nil
}

// DecodeYAML parses a YAML configuration document through the same boundary
// parser used for JSON, so section presence and structure are enforced.
func DecodeYAML(data []byte) (*ucr.Configuration, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ucr.ErrMalformed, err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ucr.ErrMalformed, err)
	}
	return ucr.ParseConfiguration(raw)
}
