// internal/services/storage_service.go
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/wildlife-licensing/internal/config"
)

// StorageService keeps generated documents in S3 or, for local development, on disk.
type StorageService struct {
	s3Client *s3.Client
	presign  *s3.PresignClient
	config   config.StorageConfig
}

type UploadResult struct {
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

func NewStorageService(ctx context.Context, cfg config.StorageConfig) (*StorageService, error) {
	if cfg.Driver != "s3" {
		if err := os.MkdirAll(cfg.LocalPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create local storage directory: %w", err)
		}
		return &StorageService{config: cfg}, nil
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3StorageService(client, cfg), nil
}

// NewS3StorageService wraps an existing S3 client.
func NewS3StorageService(client *s3.Client, cfg config.StorageConfig) *StorageService {
	return &StorageService{
		s3Client: client,
		presign:  s3.NewPresignClient(client),
		config:   cfg,
	}
}

func (s *StorageService) Put(ctx context.Context, key, contentType string, data []byte) (*UploadResult, error) {
	if s.s3Client != nil {
		_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.config.S3Bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentType:   aws.String(contentType),
			ContentLength: aws.Int64(int64(len(data))),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to upload to S3: %w", err)
		}
	} else {
		path, err := s.localPath(key)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create document directory: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write document: %w", err)
		}
	}

	return &UploadResult{
		Key:      key,
		Size:     int64(len(data)),
		MimeType: contentType,
	}, nil
}

func (s *StorageService) Get(ctx context.Context, key string) ([]byte, error) {
	if s.s3Client == nil {
		path, err := s.localPath(key)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: document %s", ErrNotFound, key)
		}
		return data, err
	}

	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *StorageService) Delete(ctx context.Context, key string) error {
	if s.s3Client == nil {
		path, err := s.localPath(key)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		return nil
	}

	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from S3: %w", err)
	}
	return nil
}

// Remote reports whether documents live in S3 and can be handed out as presigned URLs.
func (s *StorageService) Remote() bool {
	return s.presign != nil
}

func (s *StorageService) GeneratePresignedURL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	if s.presign == nil {
		return "", fmt.Errorf("S3 client not configured")
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.S3Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiration))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return req.URL, nil
}

func (s *StorageService) generateKey(folder, originalName string) string {
	id := uuid.New()
	ext := filepath.Ext(originalName)
	base := strings.TrimSuffix(filepath.Base(originalName), ext)
	filename := fmt.Sprintf("%s_%s%s", base, id.String()[:8], ext)

	if folder != "" {
		return fmt.Sprintf("%s/%s", folder, filename)
	}
	return filename
}

// localPath maps a key under the storage root and rejects keys that escape it.
func (s *StorageService) localPath(key string) (string, error) {
	root, err := filepath.Abs(s.config.LocalPath)
	if err != nil {
		return "", err
	}
	path := filepath.Join(root, filepath.FromSlash(key))
	if !strings.HasPrefix(path, root+string(os.PathSeparator)) {
		logrus.WithField("key", key).Warn("Rejected document key outside storage root")
		return "", validationError("invalid document key %q", key)
	}
	return path, nil
}
