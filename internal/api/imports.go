package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"

	"github.com/personal-pl/plctl/internal/model"
	"github.com/personal-pl/plctl/internal/period"
)

// UploadRequest is one statement file for one bank and period.
type UploadRequest struct {
	Bank     model.Bank
	Period   period.Period
	Filename string
	Content  io.Reader
}

// Upload sends a statement as multipart form data. A duplicate file is not
// an error: the batch comes back with DuplicateDetected set, whether the
// server reports it in a 2xx body or as a 409.
func (c *Client) Upload(ctx context.Context, up UploadRequest) (model.ImportBatch, error) {
	bank, err := model.ParseBank(string(up.Bank))
	if err != nil {
		return model.ImportBatch{}, err
	}
	up.Bank = bank
	if up.Period.IsZero() {
		return model.ImportBatch{}, errors.New("period is required")
	}
	if up.Content == nil {
		return model.ImportBatch{}, errors.New("file is required")
	}

	hash := sha256.New()
	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	name := filepath.Base(up.Filename)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(name)))
	h.Set("Content-Type", "text/csv")
	part, err := mw.CreatePart(h)
	if err != nil {
		return model.ImportBatch{}, fmt.Errorf("building upload: %w", err)
	}
	if _, err := io.Copy(part, io.TeeReader(up.Content, hash)); err != nil {
		return model.ImportBatch{}, fmt.Errorf("reading %s: %w", name, err)
	}
	if err := mw.WriteField("bank", string(up.Bank)); err != nil {
		return model.ImportBatch{}, fmt.Errorf("building upload: %w", err)
	}
	if err := mw.WriteField("period_month", up.Period.String()); err != nil {
		return model.ImportBatch{}, fmt.Errorf("building upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return model.ImportBatch{}, fmt.Errorf("building upload: %w", err)
	}
	sum := hex.EncodeToString(hash.Sum(nil))

	body, err := c.send(ctx, request{
		method:      http.MethodPost,
		path:        "/api/upload",
		body:        &form,
		contentType: mw.FormDataContentType(),
		auth:        true,
	})

	var batch model.ImportBatch
	switch {
	case err == nil:
		if err := json.Unmarshal(body, &batch); err != nil {
			return model.ImportBatch{}, &Error{Op: "POST /api/upload", Status: http.StatusOK, Kind: KindServer, Message: "malformed response: " + err.Error(), Err: err}
		}
	case isDuplicateConflict(err):
		batch.DuplicateDetected = true
	default:
		return model.ImportBatch{}, err
	}

	if batch.Bank == "" {
		batch.Bank = up.Bank
	}
	if batch.Period.IsZero() {
		batch.Period = up.Period
	}
	if batch.FileSHA256 == "" {
		batch.FileSHA256 = sum
	}
	if batch.SourceFile == "" {
		batch.SourceFile = name
	}
	return batch, nil
}

// isDuplicateConflict matches the 409 the backend sends for a file that was
// already imported for the same bank and period.
func isDuplicateConflict(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict {
		return false
	}
	if apiErr.Code == "duplicate_import" {
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "already been imported") || strings.Contains(msg, "duplicate")
}

func escapeQuotes(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// Commit derives transactions for every batch uploaded for the period.
func (c *Client) Commit(ctx context.Context, req model.CommitRequest) (model.CommitResult, error) {
	if req.Period.IsZero() {
		return model.CommitResult{}, errors.New("period is required")
	}
	var res model.CommitResult
	err := c.doJSON(ctx, http.MethodPost, "/api/import/commit", nil, req, &res, true)
	return res, err
}
