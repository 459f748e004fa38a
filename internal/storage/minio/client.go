// Package minio - хранилище блобов поверх MinIO
package minio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"filevault/internal/domain"
	"filevault/internal/logger"
	"filevault/internal/storage"
)

type Config struct {
	Endpoint        string        `mapstructure:"Endpoint"`
	Region          string        `mapstructure:"Region"`
	Bucket          string        `mapstructure:"Bucket"`
	AccessKeyID     string        `mapstructure:"AccessKeyID"`
	SecretAccessKey string        `mapstructure:"SecretAccessKey"`
	UseSSL          bool          `mapstructure:"UseSSL"`
	PublicBaseURL   string        `mapstructure:"PublicBaseURL"`
	Timeout         time.Duration `mapstructure:"Timeout"`
	PutTimeout      time.Duration `mapstructure:"PutTimeout"`
}

func (c *Config) Validate() error {
	switch {
	case c.Endpoint == "":
		return errors.New("endpoint is required")
	case c.Bucket == "":
		return errors.New("bucket is required")
	case c.AccessKeyID == "" || c.SecretAccessKey == "":
		return errors.New("access key and secret key are required")
	}
	return nil
}

type Client struct {
	client  *minio.Client
	bucket  string
	baseURL string
	timeout time.Duration
	// putTimeout покрывает всю запись, включая чтение тела от клиента
	putTimeout time.Duration
	log        *logger.Logger
}

var _ storage.Store = (*Client)(nil)

func NewClient(cfg *Config, log *logger.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid minio configuration: %w", err)
	}

	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	}
	if cfg.Region != "" {
		opts.Region = cfg.Region
	}

	mc, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	log = log.Named("minio")
	log.Info("minio client initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("bucket", cfg.Bucket),
		zap.Bool("use_ssl", cfg.UseSSL),
	)

	return &Client{
		client:     mc,
		bucket:     cfg.Bucket,
		baseURL:    strings.TrimRight(cfg.PublicBaseURL, "/"),
		timeout:    cfg.Timeout,
		putTimeout: putTimeout(cfg),
		log:        log,
	}, nil
}

// Ping проверяет, что бакет существует
func (c *Client) Ping(ctx context.Context) error {
	ok, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("unable to access bucket %s: %w", c.bucket, err)
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", c.bucket)
	}
	return nil
}

func (c *Client) Put(ctx context.Context, in storage.PutInput) (*domain.BlobInfo, error) {
	if in.Body == nil {
		return nil, fmt.Errorf("%w: body is required", domain.ErrValidation)
	}

	key := storage.ObjectKey(in.OwnerScope, in.DeclaredName)
	body := storage.NewLimitedReader(in.Body, in.MaxBytes)

	ctx, cancel := storage.WithTimeout(ctx, c.putTimeout)
	defer cancel()

	// размер неизвестен: клиент режет поток на части по PartSize
	_, err := c.client.PutObject(ctx, c.bucket, key, body, -1, minio.PutObjectOptions{
		ContentType: in.ContentType,
		PartSize:    storage.PartSize,
	})
	if body.Exceeded {
		return nil, &domain.PayloadTooLargeError{Limit: in.MaxBytes}
	}
	if err != nil {
		return nil, storage.Unavailable("put", key, err)
	}

	c.log.Debug("object uploaded", zap.String("key", key), zap.Int64("size", body.N))

	return &domain.BlobInfo{
		BlobID:       key,
		URL:          c.objectURL(key),
		BytesWritten: body.N,
	}, nil
}

func (c *Client) Get(ctx context.Context, blobID string) (*domain.BlobObject, error) {
	ctx, cancel := storage.WithTimeout(ctx, c.timeout)

	obj, err := c.client.GetObject(ctx, c.bucket, blobID, minio.GetObjectOptions{})
	if err != nil {
		cancel()
		return nil, c.mapError("get", blobID, err)
	}

	// GetObject ленивый, ошибки доступа появляются только на Stat
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		cancel()
		return nil, c.mapError("stat", blobID, err)
	}

	return &domain.BlobObject{
		ReadCloser:    &storage.CancelOnClose{ReadCloser: obj, Cancel: cancel},
		ContentLength: info.Size,
		ContentType:   info.ContentType,
	}, nil
}

// Delete: RemoveObject в S3 API не сообщает об отсутствии объекта,
// поэтому сначала делаем Stat
func (c *Client) Delete(ctx context.Context, blobID string) error {
	if blobID == "" {
		return fmt.Errorf("%w: key is required", domain.ErrValidation)
	}

	ctx, cancel := storage.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.client.StatObject(ctx, c.bucket, blobID, minio.StatObjectOptions{}); err != nil {
		return c.mapError("stat", blobID, err)
	}

	if err := c.client.RemoveObject(ctx, c.bucket, blobID, minio.RemoveObjectOptions{}); err != nil {
		return c.mapError("remove", blobID, err)
	}
	return nil
}

func (c *Client) mapError(op, key string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: %s", domain.ErrBlobNotFound, key)
	}
	return storage.Unavailable(op, key, err)
}

func putTimeout(cfg *Config) time.Duration {
	if cfg.PutTimeout > 0 {
		return cfg.PutTimeout
	}
	return cfg.Timeout
}

func (c *Client) objectURL(key string) string {
	if c.baseURL != "" {
		return c.baseURL + "/" + key
	}
	return fmt.Sprintf("minio://%s/%s", c.bucket, key)
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || (resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket")
}
