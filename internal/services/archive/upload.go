package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"dentarch/internal/export"
	"dentarch/internal/fileutil"
	"dentarch/internal/logging"
	"dentarch/internal/services"
)

// UploadResult describes one completed patient upload. Hashes records the
// SHA256 of each sent file keyed by path, for the cache's upload ledger.
type UploadResult struct {
	UploadID string
	Files    int
	Duration time.Duration
	Hashes   map[string]string
}

// UploadPatient sends every file in the sync plan to the remote patient
// record. Each file gets its own timeout and retry budget; one correlation
// ID ties the whole batch together server-side. The first non-retryable
// failure aborts the batch.
func (c *Client) UploadPatient(ctx context.Context, remoteID int, plan *export.Plan) (*UploadResult, error) {
	if len(plan.Items) == 0 {
		return nil, services.Wrap(services.ErrValidation, "archive", "upload", "nothing to upload", nil)
	}

	uploadID := uuid.NewString()
	start := time.Now()
	hashes := make(map[string]string, len(plan.Items))
	for _, item := range plan.Items {
		if err := ctx.Err(); err != nil {
			return nil, services.Wrap(services.ErrTransient, "archive", "upload", "cancelled", err)
		}
		hash, err := fileutil.HashFile(item.File.Path)
		if err != nil {
			return nil, services.Wrap(services.ErrNotFound, "archive", "upload", "hash "+item.File.Filename(), err)
		}
		if err := c.uploadFileWithRetry(ctx, remoteID, uploadID, item); err != nil {
			return nil, err
		}
		hashes[item.File.Path] = hash
	}

	result := &UploadResult{UploadID: uploadID, Files: len(plan.Items), Duration: time.Since(start), Hashes: hashes}
	c.logger.Info("patient upload complete",
		logging.Args(
			logging.String("patient", plan.PatientID),
			logging.String("upload_id", uploadID),
			logging.Int("files", result.Files),
			logging.Duration("duration", result.Duration),
		)...)
	return result, nil
}

func (c *Client) uploadFileWithRetry(ctx context.Context, remoteID int, uploadID string, item export.Item) error {
	attempts := c.retryAttempts + 1
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = c.uploadFile(ctx, remoteID, uploadID, item)
		if lastErr == nil {
			return nil
		}
		if !services.IsRetryable(lastErr) || attempt == attempts {
			break
		}
		c.logger.Warn("upload attempt failed, retrying",
			logging.Args(
				logging.String("file", item.File.Filename()),
				logging.Int("attempt", attempt),
				logging.Error(lastErr),
			)...)
		select {
		case <-time.After(time.Duration(attempt) * time.Second):
		case <-ctx.Done():
			return services.Wrap(services.ErrTransient, "archive", "upload", "cancelled", ctx.Err())
		}
	}
	return lastErr
}

func (c *Client) uploadFile(ctx context.Context, remoteID int, uploadID string, item export.Item) error {
	endpoint, err := url.JoinPath(c.baseURL, "/api/patients/", strconv.Itoa(remoteID), "/files/")
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "archive", "upload", "build url", err)
	}

	source, err := os.Open(item.File.Path)
	if err != nil {
		return services.Wrap(services.ErrNotFound, "archive", "upload", "open "+item.File.Filename(), err)
	}
	defer source.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("slot", item.Slot); err != nil {
		return services.Wrap(services.ErrTransient, "archive", "upload", "encode form", err)
	}
	part, err := writer.CreateFormFile("file", filepath.Base(item.File.Path))
	if err != nil {
		return services.Wrap(services.ErrTransient, "archive", "upload", "encode form", err)
	}
	if _, err := io.Copy(part, source); err != nil {
		return services.Wrap(services.ErrTransient, "archive", "upload", "read "+item.File.Filename(), err)
	}
	if err := writer.Close(); err != nil {
		return services.Wrap(services.ErrTransient, "archive", "upload", "finalize form", err)
	}

	fileCtx := ctx
	if c.uploadTimeout > 0 {
		var cancel context.CancelFunc
		fileCtx, cancel = context.WithTimeout(ctx, c.uploadTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(fileCtx, http.MethodPost, endpoint, &body)
	if err != nil {
		return services.Wrap(services.ErrTransient, "archive", "upload", "build request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-CSRFToken", c.csrfToken)
	req.Header.Set("X-Upload-ID", uploadID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if fileCtx.Err() == context.DeadlineExceeded {
			return services.Wrap(services.ErrTimeout, "archive", "upload",
				fmt.Sprintf("%s exceeded %s", item.File.Filename(), c.uploadTimeout), nil)
		}
		return services.Wrap(services.ErrTransient, "archive", "upload", "request failed", err)
	}
	defer resp.Body.Close()
	return checkStatus(resp, "upload")
}
