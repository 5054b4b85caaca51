// Package sink models the publish step of spec.md §4.4: making a
// downloaded temporary file visible at its final destination URI. Two
// strategies — object-store upload and filesystem rename — sit behind one
// capability interface, per Design Notes §9 ("Filesystem rename vs
// object-store upload"): callers never branch on scheme.
package sink

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/zzenonn/ereefs-mirror/internal/domain"
)

func md5Hash(r io.Reader) (domain.Checksum, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return domain.NewChecksum("MD5", hex.EncodeToString(h.Sum(nil))), nil
}

// Sink is the capability the download-and-publish pipeline depends on.
// Implementations must treat destURI as opaque except for the scheme that
// selected them.
type Sink interface {
	// Publish moves tempPath to destURI, making it visible at its final
	// location. On success, tempPath no longer exists.
	Publish(ctx context.Context, tempPath, destURI string) error
	// Exists probes for an object at destURI (spec.md §4.3 verify-present).
	Exists(ctx context.Context, destURI string) (bool, error)
	// Hash returns the content hash of the object at destURI, tagged the
	// same way as DatasetMetadata.Checksum (spec.md Invariant 1).
	Hash(ctx context.Context, destURI string) (domain.Checksum, error)
}

// New builds the Sink implementation matching output.Type.
func New(output domain.Output, s3Client *s3.Client) (Sink, error) {
	switch output.Type {
	case domain.SinkS3:
		return &S3Sink{client: s3Client}, nil
	case domain.SinkFile:
		return &FileSink{}, nil
	default:
		return nil, fmt.Errorf("unsupported sink type %q", output.Type)
	}
}

// DestURI builds the destination URI per spec.md §6: output.Destination
// (trailing slash enforced) + source sub-directory (if any) + filename
// (archive extension dropped if applicable).
func DestURI(output domain.Output, subDirectory, filename string) string {
	dest := output.Destination
	if !strings.HasSuffix(dest, "/") {
		dest += "/"
	}
	if subDirectory != "" {
		sub := strings.Trim(subDirectory, "/")
		dest += sub + "/"
	}
	return dest + filename
}

// splitS3 splits an "s3://bucket/key" URI.
func splitS3(destURI string) (bucket, key string, err error) {
	trimmed := strings.TrimPrefix(destURI, "s3://")
	if trimmed == destURI {
		return "", "", fmt.Errorf("not an s3:// URI: %s", destURI)
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("s3 URI missing key: %s", destURI)
	}
	return parts[0], parts[1], nil
}

// filePath converts a "file:///abs/path" URI to a filesystem path.
func filePath(destURI string) (string, error) {
	trimmed := strings.TrimPrefix(destURI, "file://")
	if trimmed == destURI {
		return "", fmt.Errorf("not a file:// URI: %s", destURI)
	}
	return trimmed, nil
}

// S3Sink publishes via the S3 multi-part uploader, grounded on the
// teacher's S3ObjectRepository.Upload.
type S3Sink struct {
	client *s3.Client
}

func (s *S3Sink) Publish(ctx context.Context, tempPath, destURI string) error {
	bucket, key, err := splitS3(destURI)
	if err != nil {
		return err
	}

	f, err := os.Open(tempPath)
	if err != nil {
		return err
	}
	defer f.Close()

	uploader := manager.NewUploader(s.client)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("s3 publish: %w", err)
	}
	return os.Remove(tempPath)
}

func (s *S3Sink) Exists(ctx context.Context, destURI string) (bool, error) {
	bucket, key, err := splitS3(destURI)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *smithyhttp.ResponseError
		if errors.As(err, &notFound) && notFound.HTTPStatusCode() == 404 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *S3Sink) Hash(ctx context.Context, destURI string) (domain.Checksum, error) {
	bucket, key, err := splitS3(destURI)
	if err != nil {
		return "", err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", err
	}
	defer out.Body.Close()
	return md5Hash(out.Body)
}

// FileSink publishes by renaming the temp file into place, falling back to
// copy-then-delete when the rename crosses filesystems (spec.md §6).
type FileSink struct{}

func (s *FileSink) Publish(ctx context.Context, tempPath, destURI string) error {
	dest, err := filePath(destURI)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := os.Rename(tempPath, dest); err != nil {
		if isCrossDevice(err) {
			return copyThenDelete(tempPath, dest)
		}
		return err
	}
	return nil
}

func (s *FileSink) Exists(ctx context.Context, destURI string) (bool, error) {
	dest, err := filePath(destURI)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(dest)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *FileSink) Hash(ctx context.Context, destURI string) (domain.Checksum, error) {
	dest, err := filePath(destURI)
	if err != nil {
		return "", err
	}
	f, err := os.Open(dest)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return md5Hash(f)
}

func isCrossDevice(err error) bool {
	return strings.Contains(err.Error(), "cross-device") || strings.Contains(err.Error(), "invalid cross-device link")
}

func copyThenDelete(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
