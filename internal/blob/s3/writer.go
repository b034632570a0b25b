package s3blob

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/DIGIX666/Arena/internal/domain"
)

const (
	// partSize is the S3 minimum part size for multipart uploads.
	partSize int64 = 5 << 20

	// multipartThreshold is the object size from which Put goes through
	// the upload manager instead of a single PutObject.
	multipartThreshold = 8 << 20
)

// Writer implements domain.BlobWriter on the client's bucket.
type Writer struct {
	client   *s3.Client
	bucket   string
	uploader *manager.Uploader
}

// NewWriter creates a Writer for c's bucket.
func NewWriter(c *Client) *Writer {
	return &Writer{
		client: c.S3(),
		bucket: c.Bucket(),
		uploader: manager.NewUploader(c.S3(), func(u *manager.Uploader) {
			u.PartSize = partSize
		}),
	}
}

// Put stores body at path. Archive batches large enough to exceed
// multipartThreshold are uploaded in parts.
func (w *Writer) Put(ctx context.Context, path string, body []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	}
	if useMultipart(len(body)) {
		if _, err := w.uploader.Upload(ctx, input); err != nil {
			return fmt.Errorf("s3blob: multipart upload %s (%d bytes): %w", path, len(body), err)
		}
		return nil
	}
	input.ContentLength = aws.Int64(int64(len(body)))
	if _, err := w.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3blob: put %s: %w", path, err)
	}
	return nil
}

func useMultipart(size int) bool { return size >= multipartThreshold }

var _ domain.BlobWriter = (*Writer)(nil)
