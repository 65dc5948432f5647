// Package minio mirrors pharmacophore model artifacts to S3-compatible
// object storage and produces presigned download URLs for reports.  The
// mirror is optional: the filesystem store stays authoritative, and mirror
// failures degrade to warnings.
package minio

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/standardseed/pharmscreen/internal/config"
	"github.com/standardseed/pharmscreen/internal/infrastructure/monitoring/logging"
	"github.com/standardseed/pharmscreen/pkg/errors"
)

// Mirror uploads model artifacts for one run.  Nil-safe: a nil *Mirror turns
// every call into a no-op so callers need no enabled-check.
type Mirror struct {
	client        *minio.Client
	bucket        string
	presignExpiry time.Duration
	logger        logging.Logger
}

// NewMirror connects to the object store and ensures the bucket exists.
func NewMirror(ctx context.Context, cfg config.MinIOConfig, logger logging.Logger) (*Mirror, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to create minio client").
			WithDetail("endpoint=" + cfg.Endpoint)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to check bucket")
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to create bucket").
				WithDetail("bucket=" + cfg.Bucket)
		}
	}

	return &Mirror{
		client:        client,
		bucket:        cfg.Bucket,
		presignExpiry: cfg.PresignExpiry,
		logger:        logger.Named("minio"),
	}, nil
}

// objectName places artifacts under runs/<runID>/models/<targetID>/<file>.
func objectName(runID, targetID, path string) string {
	return fmt.Sprintf("runs/%s/models/%s/%s", runID, targetID, filepath.Base(path))
}

// UploadArtifact mirrors one local artifact file and returns its object name.
func (m *Mirror) UploadArtifact(ctx context.Context, runID, targetID, path string) (string, error) {
	if m == nil {
		return "", nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "failed to open artifact").
			WithDetail("path=" + path)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "failed to stat artifact")
	}

	obj := objectName(runID, targetID, path)
	_, err = m.client.PutObject(ctx, m.bucket, obj, f, st.Size(), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "failed to upload artifact").
			WithDetail("object=" + obj)
	}
	return obj, nil
}

// TryUploadArtifact mirrors an artifact and downgrades any failure to a
// warning log.  The filesystem copy remains authoritative either way.
func (m *Mirror) TryUploadArtifact(ctx context.Context, runID, targetID, path string) {
	if m == nil {
		return
	}
	if _, err := m.UploadArtifact(ctx, runID, targetID, path); err != nil {
		m.logger.Warn("artifact mirror failed",
			logging.String("target_id", targetID),
			logging.String("path", path),
			logging.Err(err))
	}
}

// PresignArtifact returns a time-limited download URL for a mirrored artifact.
func (m *Mirror) PresignArtifact(ctx context.Context, runID, targetID, path string) (string, error) {
	if m == nil {
		return "", errors.New(errors.ErrCodeStorageError, "artifact mirror not configured")
	}
	obj := objectName(runID, targetID, path)
	u, err := m.client.PresignedGetObject(ctx, m.bucket, obj, m.presignExpiry, url.Values{})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "failed to presign artifact").
			WithDetail("object=" + obj)
	}
	return u.String(), nil
}

// TryPresignArtifact downgrades presign failures to a warning and returns ""
// so reports can omit the link instead of failing.
func (m *Mirror) TryPresignArtifact(ctx context.Context, runID, targetID, path string) string {
	if m == nil {
		return ""
	}
	u, err := m.PresignArtifact(ctx, runID, targetID, path)
	if err != nil {
		m.logger.Warn("artifact presign failed",
			logging.String("target_id", targetID),
			logging.Err(err))
		return ""
	}
	return u
}
