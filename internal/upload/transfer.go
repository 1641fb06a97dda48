package upload

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/clipqueue/client/internal/apiclient"
)

// TransferError reports a failed PUT to the storage destination.
type TransferError struct {
	StatusCode int
	Err        error
}

func (e *TransferError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transfer failed: %v", e.Err)
	}
	return fmt.Sprintf("transfer failed with status %d", e.StatusCode)
}

func (e *TransferError) Unwrap() error { return e.Err }

// TransferFile PUTs the file at path to target. The storage destination
// checks the body against hash.
func TransferFile(ctx context.Context, client *http.Client, target apiclient.UploadTarget, path, hash string) error {
	if client == nil {
		client = http.DefaultClient
	}

	f, err := os.Open(path)
	if err != nil {
		return &TransferError{Err: err}
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return &TransferError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.UploadURL, f)
	if err != nil {
		return &TransferError{Err: err}
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", mp4MIME)
	req.Header.Set("X-Bz-Content-Sha1", hash)

	resp, err := client.Do(req)
	if err != nil {
		return &TransferError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &TransferError{StatusCode: resp.StatusCode}
	}
	return nil
}
