package binaryrepo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/rs/zerolog"

	"github.com/open-edge-platform/geti-persistence/internal/errorx"
	"github.com/open-edge-platform/geti-persistence/internal/log"
)

const (
	presignTTL      = 15 * time.Minute
	deleteBatchSize = 1000
)

// S3Options configures the object-storage backend.
type S3Options struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Bucket holds the blobs of this store's object type.
	Bucket string
	// BasePath prefixes every object key, distinguishing cells in
	// multi-cell deployments. May be empty.
	BasePath string
	// HTTPClient overrides the transport; tests use it to simulate
	// backend failures.
	HTTPClient *http.Client
	// Retry overrides the default retry policy.
	Retry *RetryPolicy
}

// S3Store implements Store on S3-compatible object storage. Transient
// 429/503 responses are retried with jittered exponential backoff; a
// connection timeout triggers exactly one client re-initialization and
// one further attempt. The client is also rebuilt when the process id
// changes, since network clients cannot be shared across forked workers.
type S3Store struct {
	opts   S3Options
	owner  Owner
	retry  RetryPolicy
	logger zerolog.Logger

	mu         sync.Mutex
	pid        int
	client     *s3.S3
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
}

// NewS3Store returns an object-storage-backed store for the owner.
func NewS3Store(opts S3Options, owner Owner) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errorx.Preconditionf("object storage bucket name is required")
	}
	retry := DefaultRetryPolicy(retryableS3)
	if opts.Retry != nil {
		retry = *opts.Retry
		if retry.Retryable == nil {
			retry.Retryable = retryableS3
		}
	}
	s := &S3Store{
		opts:   opts,
		owner:  owner,
		retry:  retry,
		logger: log.For("binaryrepo.s3").With().Str("bucket", opts.Bucket).Logger(),
	}
	if err := s.connect(); err != nil {
		return nil, err
	}
	return s, nil
}

// connect rebuilds the session and clients. Callers hold no lock; the
// swap happens under s.mu.
func (s *S3Store) connect() error {
	cfg := aws.NewConfig().
		WithRegion(s.opts.Region).
		WithMaxRetries(0).
		WithS3ForcePathStyle(true)
	if s.opts.Endpoint != "" {
		cfg = cfg.WithEndpoint(s.opts.Endpoint)
	}
	if s.opts.AccessKeyID != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(
			s.opts.AccessKeyID, s.opts.SecretAccessKey, ""))
	}
	if s.opts.HTTPClient != nil {
		cfg = cfg.WithHTTPClient(s.opts.HTTPClient)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return fmt.Errorf("failed to create object storage session: %w", err)
	}
	s.mu.Lock()
	s.pid = os.Getpid()
	s.client = s3.New(sess)
	s.uploader = s3manager.NewUploaderWithClient(s.client)
	s.downloader = s3manager.NewDownloaderWithClient(s.client)
	s.mu.Unlock()
	return nil
}

// ensureFresh reconnects if the process id changed since the clients
// were built.
func (s *S3Store) ensureFresh() {
	s.mu.Lock()
	stale := s.pid != os.Getpid()
	s.mu.Unlock()
	if stale {
		s.logger.Warn().Msg("process id changed, rebuilding object storage client")
		if err := s.connect(); err != nil {
			s.logger.Error().Err(err).Msg("client rebuild failed")
		}
	}
}

func (s *S3Store) s3() *s3.S3 {
	s.ensureFresh()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *S3Store) up() *s3manager.Uploader {
	s.ensureFresh()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploader
}

func (s *S3Store) down() *s3manager.Downloader {
	s.ensureFresh()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloader
}

// run executes fn with the transient-failure retry policy, then applies
// the timeout recovery: one client re-initialization followed by exactly
// one more attempt. A second timeout propagates.
func (s *S3Store) run(ctx context.Context, op string, fn func() error) error {
	err := s.retry.Do(ctx, fn)
	if err == nil || !timeoutS3(err) {
		return err
	}
	s.logger.Warn().Str("op", op).Msg("connection timeout, reinitializing client")
	if rErr := s.connect(); rErr != nil {
		return err
	}
	return fn()
}

// retryableS3 reports whether the backend signalled a transient
// condition (HTTP 429 or 503).
func retryableS3(err error) bool {
	var rf awserr.RequestFailure
	if errors.As(err, &rf) {
		return errorx.RetryableStatus(rf.StatusCode())
	}
	return false
}

// timeoutS3 reports whether the error chain contains a connection or
// request timeout. aws-sdk-go wraps transport errors without
// implementing Unwrap, so OrigErr has to be walked explicitly.
func timeoutS3(err error) bool {
	if errorx.IsTimeout(err) {
		return true
	}
	var ae awserr.Error
	if errors.As(err, &ae) {
		switch ae.Code() {
		case request.ErrCodeRequestError, request.ErrCodeResponseTimeout, "RequestTimeout":
			if orig := ae.OrigErr(); orig != nil {
				return timeoutS3(orig)
			}
		}
	}
	return false
}

func notFoundS3(err error) bool {
	var ae awserr.Error
	if errors.As(err, &ae) {
		switch ae.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	var rf awserr.RequestFailure
	if errors.As(err, &rf) {
		return rf.StatusCode() == http.StatusNotFound
	}
	return false
}

func (s *S3Store) key(filename string) string {
	return path.Join(s.owner.keyPrefix(s.opts.BasePath), filename)
}

// Save uploads the blob and returns the stored name.
func (s *S3Store) Save(ctx context.Context, filename string, src Source, opts ...SaveOption) (string, error) {
	o := applySaveOptions(opts)
	if o.makeUnique {
		filename = uniqueFilename(filename)
	}
	if !o.overwrite {
		exists, err := s.Exists(ctx, filename)
		if err != nil {
			return "", err
		}
		if exists {
			return "", errorx.AlreadyExistsf("blob %q", filename)
		}
	}

	reader := src.Reader
	if src.Path != "" {
		f, err := os.Open(src.Path)
		if err != nil {
			return "", fmt.Errorf("failed to open source file: %w", err)
		}
		defer f.Close()
		reader = f
	}
	// A retried upload must resend the full body, so a source that cannot
	// rewind is buffered before the first attempt.
	body, ok := reader.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(reader)
		if err != nil {
			return "", fmt.Errorf("failed to read blob source: %w", err)
		}
		body = bytes.NewReader(data)
	}

	err := s.run(ctx, "save", func() error {
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return err
		}
		_, upErr := s.up().UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket: aws.String(s.opts.Bucket),
			Key:    aws.String(s.key(filename)),
			Body:   body,
		})
		return upErr
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload blob %q: %w", filename, err)
	}
	return filename, nil
}

// Get returns the blob's bytes and size, failing with a not-found error
// when the blob does not exist.
func (s *S3Store) Get(ctx context.Context, filename string) (io.ReadCloser, int64, error) {
	var body io.ReadCloser
	var size int64
	err := s.run(ctx, "get", func() error {
		client := s.s3()
		out, err := client.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.opts.Bucket),
			Key:    aws.String(s.key(filename)),
		})
		if err != nil {
			return err
		}
		body = out.Body
		size = aws.Int64Value(out.ContentLength)
		return nil
	})
	if err != nil {
		if notFoundS3(err) {
			return nil, 0, errorx.NotFoundf("blob %q", filename)
		}
		return nil, 0, fmt.Errorf("failed to get blob %q: %w", filename, err)
	}
	return body, size, nil
}

// PathOrURL returns a presigned URL valid for 15 minutes, usable by
// external tools without going through the application.
func (s *S3Store) PathOrURL(ctx context.Context, filename string) (string, error) {
	client := s.s3()
	req, _ := client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(s.key(filename)),
	})
	url, err := req.Presign(presignTTL)
	if err != nil {
		return "", fmt.Errorf("failed to presign blob %q: %w", filename, err)
	}
	return url, nil
}

// DeleteByFilename removes the blob; an empty name is a logged no-op and
// deleting an absent blob counts as success.
func (s *S3Store) DeleteByFilename(ctx context.Context, filename string) error {
	if filename == "" {
		s.logger.Debug().Msg("skipping delete of empty filename")
		return nil
	}
	err := s.run(ctx, "delete", func() error {
		client := s.s3()
		_, err := client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.opts.Bucket),
			Key:    aws.String(s.key(filename)),
		})
		return err
	})
	if err != nil && !notFoundS3(err) {
		return fmt.Errorf("failed to delete blob %q: %w", filename, err)
	}
	return nil
}

// DeleteAll removes every object under the owner's key prefix in batches.
func (s *S3Store) DeleteAll(ctx context.Context) error {
	keys, err := s.listKeys(ctx)
	if err != nil {
		return err
	}
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))
		batch := make([]*s3.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			batch = append(batch, &s3.ObjectIdentifier{Key: aws.String(key)})
		}
		err := s.run(ctx, "delete_all", func() error {
			client := s.s3()
			_, err := client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(s.opts.Bucket),
				Delete: &s3.Delete{Objects: batch, Quiet: aws.Bool(true)},
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to delete blobs under %q: %w", s.owner.keyPrefix(s.opts.BasePath), err)
		}
	}
	return nil
}

// Exists reports whether the blob exists.
func (s *S3Store) Exists(ctx context.Context, filename string) (bool, error) {
	err := s.run(ctx, "exists", func() error {
		client := s.s3()
		_, err := client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.opts.Bucket),
			Key:    aws.String(s.key(filename)),
		})
		return err
	})
	if err != nil {
		if notFoundS3(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check blob %q: %w", filename, err)
	}
	return true, nil
}

// ObjectSize returns the blob's size in bytes.
func (s *S3Store) ObjectSize(ctx context.Context, filename string) (int64, error) {
	var size int64
	err := s.run(ctx, "object_size", func() error {
		client := s.s3()
		out, err := client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.opts.Bucket),
			Key:    aws.String(s.key(filename)),
		})
		if err != nil {
			return err
		}
		size = aws.Int64Value(out.ContentLength)
		return nil
	})
	if err != nil {
		if notFoundS3(err) {
			return 0, errorx.NotFoundf("blob %q", filename)
		}
		return 0, fmt.Errorf("failed to stat blob %q: %w", filename, err)
	}
	return size, nil
}

// StorageSize returns the total size of every object under the owner's
// key prefix.
func (s *S3Store) StorageSize(ctx context.Context) (int64, error) {
	var total int64
	err := s.run(ctx, "storage_size", func() error {
		total = 0
		client := s.s3()
		return client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.opts.Bucket),
			Prefix: aws.String(s.owner.keyPrefix(s.opts.BasePath) + "/"),
		}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				total += aws.Int64Value(obj.Size)
			}
			return true
		})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan storage size: %w", err)
	}
	return total, nil
}

func (s *S3Store) listKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.run(ctx, "list", func() error {
		keys = keys[:0]
		client := s.s3()
		return client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.opts.Bucket),
			Prefix: aws.String(s.owner.keyPrefix(s.opts.BasePath) + "/"),
		}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				keys = append(keys, aws.StringValue(obj.Key))
			}
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}
	return keys, nil
}

// SaveGroup uploads every file under sourceDir, recursively, preserving
// relative paths as key suffixes.
func (s *S3Store) SaveGroup(ctx context.Context, sourceDir string) error {
	return filepath.WalkDir(sourceDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(sourceDir, p)
		if err != nil {
			return err
		}
		_, err = s.Save(ctx, filepath.ToSlash(rel), FromFile(p))
		return err
	})
}

// ExportGroup downloads the owner's blob set into targetDir, preserving
// key suffixes as relative paths.
func (s *S3Store) ExportGroup(ctx context.Context, targetDir string) error {
	keys, err := s.listKeys(ctx)
	if err != nil {
		return err
	}
	prefix := s.owner.keyPrefix(s.opts.BasePath) + "/"
	for _, key := range keys {
		rel := strings.TrimPrefix(key, prefix)
		target := filepath.Join(targetDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		f, err := os.Create(target)
		if err != nil {
			return err
		}
		dlErr := s.run(ctx, "export", func() error {
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return err
			}
			downloader := s.down()
			_, err := downloader.DownloadWithContext(ctx, f, &s3.GetObjectInput{
				Bucket: aws.String(s.opts.Bucket),
				Key:    aws.String(key),
			})
			return err
		})
		closeErr := f.Close()
		if dlErr != nil {
			return fmt.Errorf("failed to export blob %q: %w", key, dlErr)
		}
		if closeErr != nil {
			return closeErr
		}
	}
	return nil
}
