package service

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/scripttrimmer/api/internal/client"
	"github.com/scripttrimmer/api/internal/model"
)

const presignExpiry = 15 * time.Minute

var ErrStorageNotConfigured = fmt.Errorf("storage not configured")

// UploadService issues presigned PUT URLs so clients can push source videos
// straight to S3 and submit the resulting s3:// reference as a job.
type UploadService struct {
	storage client.StorageClient
}

func NewUploadService(storage client.StorageClient) *UploadService {
	return &UploadService{storage: storage}
}

// Presign returns a presigned upload URL for a new object under uploads/.
func (s *UploadService) Presign(ctx context.Context, req *model.PresignRequest) (*model.PresignResponse, error) {
	if s.storage == nil {
		return nil, ErrStorageNotConfigured
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "video/mp4"
	}

	key := fmt.Sprintf("uploads/%s_%s", uuid.New().String(), safeObjectName(req.Filename))

	uploadURL, err := s.storage.PresignPut(ctx, key, contentType, presignExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	return &model.PresignResponse{
		UploadURL: uploadURL,
		S3URL:     fmt.Sprintf("s3://%s/%s", s.storage.Bucket(), key),
		Key:       key,
		ExpiresAt: time.Now().Add(presignExpiry),
	}, nil
}

var unsafeObjectChars = regexp.MustCompile(`[^\w.\-]+`)

// safeObjectName keeps only the base filename with S3-safe characters.
func safeObjectName(filename string) string {
	name := filepath.Base(filename)
	name = unsafeObjectChars.ReplaceAllString(name, "_")
	if name == "" || name == "." {
		name = "upload.mp4"
	}
	return name
}
