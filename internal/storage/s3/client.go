package s3

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"filevault/internal/domain"
	"filevault/internal/logger"
	"filevault/internal/storage"
)

const (
	defaultEndpoint = "https://storage.yandexcloud.net"
	defaultRegion   = "ru-central1"
	pingTimeout     = 30 * time.Second
)

// Client - хранилище блобов поверх S3-совместимого API
type Client struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	baseURL  string
	timeout  time.Duration
	// putTimeout покрывает всю запись, включая чтение тела от клиента
	putTimeout time.Duration
	log        *logger.Logger
}

var _ storage.Store = (*Client)(nil)

// NewClient создает новый экземпляр клиента S3
func NewClient(conf *Config, log *logger.Logger) (*Client, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid s3 configuration: %w", err)
	}

	endpoint := conf.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	region := conf.Region
	if region == "" {
		region = defaultRegion
	}

	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		conf.AccessKeyID,
		conf.SecretAccessKey,
		"",
	))

	// Контрольные суммы только там, где их требует API: S3-совместимые
	// хранилища не всегда принимают aws-chunked с трейлером CRC32
	client := s3.New(s3.Options{
		BaseEndpoint:               aws.String(endpoint),
		Region:                     region,
		Credentials:                creds,
		UsePathStyle:               conf.UsePathStyle,
		RetryMode:                  aws.RetryModeAdaptive,
		RetryMaxAttempts:           3,
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	})

	// Части держим в памяти по одной, чтобы память не росла с размером файла
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = storage.PartSize
		u.Concurrency = 1
	})

	return &Client{
		client:     client,
		uploader:   uploader,
		bucket:     conf.Bucket,
		baseURL:    strings.TrimRight(conf.PublicBaseURL, "/"),
		timeout:    conf.Timeout,
		putTimeout: putTimeout(conf),
		log:        log.Named("s3"),
	}, nil
}

// Ping проверяет доступ к бакету
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("unable to access bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Put потоково загружает блоб в S3
func (c *Client) Put(ctx context.Context, in storage.PutInput) (*domain.BlobInfo, error) {
	if in.Body == nil {
		return nil, fmt.Errorf("%w: body is required", domain.ErrValidation)
	}

	key := storage.ObjectKey(in.OwnerScope, in.DeclaredName)
	body := storage.NewLimitedReader(in.Body, in.MaxBytes)

	ctx, cancel := storage.WithTimeout(ctx, c.putTimeout)
	defer cancel()

	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(in.ContentType),
	})
	if body.Exceeded {
		// загрузчик сам отменяет незавершённую multipart-загрузку
		return nil, &domain.PayloadTooLargeError{Limit: in.MaxBytes}
	}
	if err != nil {
		return nil, storage.Unavailable("put", key, err)
	}

	c.log.Debug("object uploaded",
		zap.String("key", key),
		zap.Int64("size", body.N),
	)

	return &domain.BlobInfo{
		BlobID:       key,
		URL:          c.objectURL(key),
		BytesWritten: body.N,
	}, nil
}

// Get получает объект из S3
func (c *Client) Get(ctx context.Context, blobID string) (*domain.BlobObject, error) {
	ctx, cancel := storage.WithTimeout(ctx, c.timeout)

	result, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(blobID),
	})
	if err != nil {
		cancel()
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrBlobNotFound, blobID)
		}
		return nil, storage.Unavailable("get", blobID, err)
	}

	length := int64(-1)
	if result.ContentLength != nil {
		length = *result.ContentLength
	}

	return &domain.BlobObject{
		ReadCloser:    &storage.CancelOnClose{ReadCloser: result.Body, Cancel: cancel},
		ContentLength: length,
		ContentType:   aws.ToString(result.ContentType),
	}, nil
}

// Delete удаляет объект из S3
func (c *Client) Delete(ctx context.Context, blobID string) error {
	if blobID == "" {
		return fmt.Errorf("%w: key is required", domain.ErrValidation)
	}

	ctx, cancel := storage.WithTimeout(ctx, c.timeout)
	defer cancel()

	// Проверяем существование объекта перед удалением
	_, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(blobID),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", domain.ErrBlobNotFound, blobID)
		}
		return storage.Unavailable("head", blobID, err)
	}

	_, err = c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(blobID),
	})
	if err != nil {
		return storage.Unavailable("delete", blobID, err)
	}

	return nil
}

func putTimeout(conf *Config) time.Duration {
	if conf.PutTimeout > 0 {
		return conf.PutTimeout
	}
	return conf.Timeout
}

func (c *Client) objectURL(key string) string {
	if c.baseURL != "" {
		return c.baseURL + "/" + key
	}
	return fmt.Sprintf("s3://%s/%s", c.bucket, key)
}

// isNotFound: HeadObject отвечает NotFound, GetObject - NoSuchKey
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
