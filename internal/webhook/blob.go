// Package webhook provides LINE webhook handling.
// This file contains the message-content (photo bytes) fetcher.
package webhook

import (
	"context"
	"fmt"
	"io"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// maxImageBytes caps a downloaded photo. LINE serves originals up to
// roughly 10 MB for images.
const maxImageBytes = 10 << 20

// defaultImageMIME is assumed when the content response carries no
// usable content type. LINE normalizes photos to JPEG.
const defaultImageMIME = "image/jpeg"

// BlobFetcher downloads message content via the Messaging API blob
// endpoint.
type BlobFetcher struct {
	client *messaging_api.MessagingApiBlobAPI
}

// NewBlobFetcher creates a BlobFetcher.
func NewBlobFetcher(client *messaging_api.MessagingApiBlobAPI) *BlobFetcher {
	return &BlobFetcher{client: client}
}

// FetchImage downloads the content of the given message id and returns
// the bytes with their MIME type.
func (f *BlobFetcher) FetchImage(_ context.Context, messageID string) ([]byte, string, error) {
	resp, err := f.client.GetMessageContent(messageID)
	if err != nil {
		return nil, "", fmt.Errorf("get message content: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read message content: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("message content exceeds %d bytes", maxImageBytes)
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = defaultImageMIME
	}

	return data, mime, nil
}
