// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llama

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// =============================================================================
// MODEL DOWNLOAD
// =============================================================================

// downloadModel fetches a model file to dest, reporting whole-percent
// progress. The body streams into dest+".part" and is renamed into place
// only on success, so a partial download never masquerades as a model.
func downloadModel(ctx context.Context, srcURL, dest string, progress func(percent int)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return &Error{Type: ErrTypeTransport, Message: "failed to create download request", Cause: err}
	}

	client := &http.Client{Timeout: 0} // large files; bounded by context
	resp, err := client.Do(req)
	if err != nil {
		return &Error{Type: ErrTypeTransport, Message: "model download failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &Error{Type: ErrTypeTransport, Message: fmt.Sprintf("model download failed: %s", resp.Status)}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &Error{Type: ErrTypeIO, Message: "failed to create model directory", Cause: err}
	}

	part := dest + ".part"
	file, err := os.Create(part)
	if err != nil {
		return &Error{Type: ErrTypeIO, Message: "failed to create model file", Cause: err}
	}

	writer := &progressWriter{total: resp.ContentLength, report: progress}
	_, err = io.Copy(io.MultiWriter(file, writer), resp.Body)
	closeErr := file.Close()

	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(part)
		return &Error{Type: ErrTypeIO, Message: "model download interrupted", Cause: err}
	}

	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return &Error{Type: ErrTypeIO, Message: "failed to finalize model file", Cause: err}
	}

	if progress != nil {
		progress(100)
	}
	return nil
}

// progressWriter reports download progress as whole percentages, at most
// once per percent and no more often than every 100ms.
type progressWriter struct {
	total    int64
	written  int64
	last     int
	lastTime time.Time
	report   func(percent int)
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.written += int64(len(p))

	if w.report != nil && w.total > 0 {
		percent := int(w.written * 100 / w.total)
		if percent > 99 {
			percent = 99
		}
		if percent > w.last && time.Since(w.lastTime) >= 100*time.Millisecond {
			w.last = percent
			w.lastTime = time.Now()
			w.report(percent)
		}
	}

	return len(p), nil
}
