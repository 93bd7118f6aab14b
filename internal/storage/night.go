package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/nightline-game/nightline/pkg/scenario"
)

// Night operations (filesystem-backed)

func (r *RedisStorage) ListNights(ctx context.Context) (map[string]string, error) {
	nightsDir := filepath.Join(r.dataDir, "nights")
	nights := make(map[string]string)

	err := filepath.WalkDir(nightsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			return nil
		}

		n, err := scenario.LoadFile(path)
		if err != nil {
			r.logger.Warn("Failed to load night file", "path", path, "error", err)
			return nil
		}

		nights[n.Name] = filepath.Base(path)
		return nil
	})

	if err != nil {
		r.logger.Error("Failed to walk nights directory", "error", err)
		return nil, fmt.Errorf("failed to list nights: %w", err)
	}

	return nights, nil
}

func (r *RedisStorage) GetNight(ctx context.Context, filename string) (*scenario.Night, error) {
	if strings.Contains(filename, "..") || strings.ContainsRune(filename, os.PathSeparator) {
		return nil, fmt.Errorf("invalid night filename: %s", filename)
	}

	path := filepath.Join(r.dataDir, "nights", filename)
	n, err := scenario.LoadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("night not found: %s", filename)
		}
		return nil, fmt.Errorf("failed to load night %s: %w", filename, err)
	}

	return n, nil
}
