// Package netx uploads files to presigned object storage URLs.
package netx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// PutPresigned uploads body with a PUT to a presigned URL and returns the
// ETag reported by the storage, without quotes. An empty contentType sends
// application/octet-stream.
func PutPresigned(ctx context.Context, client *http.Client, url, contentType string, body []byte) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload failed: %s; body: %s", resp.Status, string(b))
	}
	return strings.Trim(resp.Header.Get("ETag"), `"`), nil
}
