// Package host provides a headless lifecycle.Host backed by a workflow file on disk.
package host

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"jobredirect/internal/apperrors"
	"jobredirect/internal/lifecycle"
)

// RefreshFunc reloads whatever displays job results. It runs on refresh.
type RefreshFunc func(ctx context.Context) error

// File serialises a JSON or YAML workflow file as the unit of work, prints
// alerts to a writer and reports result refreshes on a channel.
type File struct {
	path      string
	alerts    io.Writer
	onRefresh RefreshFunc
	logger    *slog.Logger

	mu        sync.Mutex
	refreshed chan struct{}
	refreshes int
}

// NewFile creates a file host. alerts defaults to os.Stderr; onRefresh may be nil.
func NewFile(path string, alerts io.Writer, onRefresh RefreshFunc) *File {
	if alerts == nil {
		alerts = os.Stderr
	}
	return &File{
		path:      path,
		alerts:    alerts,
		onRefresh: onRefresh,
		logger:    slog.With("component", "host", "workflow", path),
		refreshed: make(chan struct{}, 1),
	}
}

// SerializeWork reads the workflow file. YAML documents are converted to JSON;
// JSON documents are passed through after a validity check.
func (f *File) SerializeWork(ctx context.Context) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, apperrors.Internal("read workflow", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, apperrors.Validation("workflow", "workflow file is empty")
	}

	switch strings.ToLower(filepath.Ext(f.path)) {
	case ".json":
		if !json.Valid(data) {
			return nil, apperrors.Validation("workflow", "workflow file is not valid JSON")
		}
		return json.RawMessage(data), nil
	default:
		// YAML is a superset of JSON, so anything else goes through the YAML decoder.
		return yamlToJSON(data)
	}
}

// Alert writes the message to the alert writer.
func (f *File) Alert(message string) {
	f.logger.Warn("Host alert", "message", message)
	if _, err := fmt.Fprintln(f.alerts, message); err != nil {
		f.logger.Error("Failed to write alert", "error", err)
	}
}

// RefreshResults runs the refresh callback and signals Refreshed.
func (f *File) RefreshResults(ctx context.Context) error {
	var err error
	if f.onRefresh != nil {
		err = f.onRefresh(ctx)
	}

	f.mu.Lock()
	f.refreshes++
	f.mu.Unlock()

	select {
	case f.refreshed <- struct{}{}:
	default:
	}

	if err != nil {
		f.logger.Warn("Result refresh failed", "error", err)
		return err
	}
	f.logger.Info("Results refreshed")
	return nil
}

// Refreshed receives a value after each refresh. Refreshes that happen while a
// previous signal is still pending are coalesced.
func (f *File) Refreshed() <-chan struct{} {
	return f.refreshed
}

// Refreshes returns how many refreshes have run.
func (f *File) Refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func yamlToJSON(data []byte) (json.RawMessage, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.Validation("workflow", "workflow file is not valid YAML: "+err.Error())
	}
	if doc == nil {
		return nil, apperrors.Validation("workflow", "workflow file is empty")
	}

	out, err := json.Marshal(normalize(doc))
	if err != nil {
		return nil, apperrors.Validation("workflow", "workflow cannot be encoded as JSON: "+err.Error())
	}
	return out, nil
}

// normalize turns YAML maps with non-string keys (for example numeric node ids)
// into string-keyed maps that encoding/json accepts.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalize(val)
		}
		return m
	case []any:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	default:
		return v
	}
}

var _ lifecycle.Host = (*File)(nil)
