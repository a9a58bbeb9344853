// Package tokenfile persists session tokens on disk and keeps a live session
// in step with the file.
package tokenfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/propmanage/propsync/internal/logging"
	"github.com/propmanage/propsync/internal/model"
	"github.com/propmanage/propsync/internal/transport"
)

var ErrNoToken = errors.New("token file holds no access token")

// Load reads tokens written by Save.
func Load(path string) (model.AuthTokens, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.AuthTokens{}, err
	}
	var tokens model.AuthTokens
	if err := json.Unmarshal(data, &tokens); err != nil {
		return model.AuthTokens{}, fmt.Errorf("decode token file %s: %w", path, err)
	}
	if tokens.AccessToken == "" {
		return model.AuthTokens{}, ErrNoToken
	}
	return tokens, nil
}

// Save replaces path atomically with tokens, readable by the owner only.
func Save(path string, tokens model.AuthTokens) error {
	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return writeFileAtomic(path, append(data, '\n'), 0o600)
}

// Remove deletes the token file; a missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}

// Watch installs the file's tokens into session and reloads them whenever
// the file is written or replaced. Deleting the file clears the session.
// It blocks until ctx ends.
func Watch(ctx context.Context, path string, session *transport.Session, logger *zap.Logger) error {
	logger = logging.OrNop(logger).Named("tokenfile")
	path = filepath.Clean(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create token file watcher: %w", err)
	}
	defer watcher.Close()
	// The parent is watched because Save replaces the file by rename.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	reload(path, session, logger)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			switch {
			case event.Has(fsnotify.Remove):
				session.Clear()
				logger.Info("token file removed; session cleared", zap.String("path", path))
			case event.Has(fsnotify.Write), event.Has(fsnotify.Create), event.Has(fsnotify.Rename):
				reload(path, session, logger)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("token file watcher error", zap.Error(err))
		}
	}
}

func reload(path string, session *transport.Session, logger *zap.Logger) {
	tokens, err := Load(path)
	switch {
	case err == nil:
		if tokens.AccessToken != session.Token() {
			session.SetTokens(tokens)
			logger.Info("session token reloaded", zap.String("path", path))
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		// Partial writes surface here; the next event reloads.
		logger.Debug("token file not loadable", zap.String("path", path), zap.Error(err))
	}
}
