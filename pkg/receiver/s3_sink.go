package receiver

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rescp17/bdx/pkg/fileInfo"
	"github.com/rescp17/bdx/pkg/transfer"
)

// MaxObjectSize is the largest object a single PutObject accepts.
const MaxObjectSize = 5 << 30

// ObjectPutter is the part of *s3.Client an S3Sink uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink collects a transfer in memory and uploads it as one object when the
// transfer commits. Nothing is uploaded for an aborted transfer.
type S3Sink struct {
	client ObjectPutter
	bucket string
	key    string
	meta   fileInfo.Metadata

	mu     sync.Mutex
	buf    []byte
	closed bool
}

var _ transfer.BlockSink = (*S3Sink)(nil)

func NewS3Sink(client ObjectPutter, bucket, key string, meta fileInfo.Metadata) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, key: key, meta: meta}
}

// ObjectKey joins prefix and a designator into an object key without empty,
// "." or ".." segments.
func ObjectKey(prefix, designator string) (string, error) {
	key := strings.TrimPrefix(path.Clean("/"+designator), "/")
	if key == "" {
		return "", fmt.Errorf("%w: invalid designator %q", transfer.ErrDesignatorUnknown, designator)
	}
	return prefix + key, nil
}

func (s *S3Sink) WriteBlock(offset uint64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	end := offset + uint64(len(data))
	if end > MaxObjectSize || end < offset {
		return fmt.Errorf("object larger than %d bytes", uint64(MaxObjectSize))
	}
	if end > uint64(len(s.buf)) {
		s.buf = append(s.buf, make([]byte, end-uint64(len(s.buf)))...)
	}
	copy(s.buf[offset:], data)
	return nil
}

// Commit verifies the announced checksum and uploads the object.
func (s *S3Sink) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	s.closed = true

	sum := sha256.Sum256(s.buf)
	if s.meta.Checksum != "" {
		if err := fileInfo.CheckSum(hex.EncodeToString(sum[:]), s.meta.Checksum); err != nil {
			s.buf = nil
			return err
		}
	}

	contentType := s.meta.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	metadata := map[string]string{
		"sha256":      hex.EncodeToString(sum[:]),
		"upload-time": time.Now().UTC().Format(time.RFC3339),
	}
	if s.meta.Name != "" {
		metadata["original-filename"] = s.meta.Name
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:         aws.String(s.bucket),
		Key:            aws.String(s.key),
		Body:           bytes.NewReader(s.buf),
		ContentLength:  aws.Int64(int64(len(s.buf))),
		ContentType:    aws.String(contentType),
		ChecksumSHA256: aws.String(base64.StdEncoding.EncodeToString(sum[:])),
		Metadata:       metadata,
	})
	size := len(s.buf)
	s.buf = nil
	if err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	slog.Info("Uploaded object", "bucket", s.bucket, "key", s.key, "size", size)
	return nil
}

func (s *S3Sink) Abort(cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.buf = nil
	return nil
}
