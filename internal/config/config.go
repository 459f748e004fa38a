package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"filevault/internal/logger"
	"filevault/internal/storage/minio"
	"filevault/internal/storage/s3"
)

const (
	DefaultMaxUploadBytes     int64 = 20 << 20
	DefaultMaxFilesPerRequest       = 10

	DriverS3    = "s3"
	DriverMinio = "minio"

	// MinUploadRate - скорость клиента, при которой загрузка файла
	// максимального размера ещё укладывается в UploadTimeout
	MinUploadRate int64 = 64 << 10 // байт в секунду
)

type Config struct {
	Server   ServerConfig   `mapstructure:"Server"`
	Database DatabaseConfig `mapstructure:"Database"`
	Storage  StorageConfig  `mapstructure:"Storage"`
	Upload   UploadConfig   `mapstructure:"Upload"`
	Auth     AuthConfig     `mapstructure:"Auth"`
	Redis    RedisConfig    `mapstructure:"Redis"`
	Log      logger.Config  `mapstructure:"Log"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"Port"`
	GRPCPort        string        `mapstructure:"GRPCPort"`
	ShutdownTimeout time.Duration `mapstructure:"ShutdownTimeout"`
	RequestTimeout  time.Duration `mapstructure:"RequestTimeout"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"Host"`
	Port           string `mapstructure:"Port"`
	User           string `mapstructure:"User"`
	Password       string `mapstructure:"Password"`
	Name           string `mapstructure:"Name"`
	SSLMode        string `mapstructure:"SSLMode"`
	MigrationsPath string `mapstructure:"MigrationsPath"`
}

type StorageConfig struct {
	Driver          string        `mapstructure:"Driver"`
	Endpoint        string        `mapstructure:"Endpoint"`
	Region          string        `mapstructure:"Region"`
	Bucket          string        `mapstructure:"Bucket"`
	AccessKeyID     string        `mapstructure:"AccessKeyID"`
	SecretAccessKey string        `mapstructure:"SecretAccessKey"`
	UseSSL          bool          `mapstructure:"UseSSL"`
	UsePathStyle    bool          `mapstructure:"UsePathStyle"`
	PublicBaseURL   string        `mapstructure:"PublicBaseURL"`
	Timeout         time.Duration `mapstructure:"Timeout"`
	// UploadTimeout ограничивает запись блоба целиком, включая чтение тела
	// от клиента. По умолчанию рассчитывается из MaxUploadBytes.
	UploadTimeout time.Duration `mapstructure:"UploadTimeout"`
}

type UploadConfig struct {
	MaxUploadBytes     int64    `mapstructure:"MaxUploadBytes"`
	AllowedTypes       []string `mapstructure:"AllowedTypes"`
	MaxFilesPerRequest int      `mapstructure:"MaxFilesPerRequest"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"JWTSecret"`
	Issuer    string `mapstructure:"Issuer"`
}

// RedisConfig - пустой Addr отключает кэш
type RedisConfig struct {
	Addr     string        `mapstructure:"Addr"`
	Password string        `mapstructure:"Password"`
	DB       int           `mapstructure:"DB"`
	TTL      time.Duration `mapstructure:"TTL"`
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()

	// Устанавливаем файл конфигурации
	v.SetConfigFile(path)

	// Привязываем переменные окружения
	bindings := map[string]string{
		"Database.Host":           "DATABASE_HOST",
		"Database.Port":           "DATABASE_PORT",
		"Database.User":           "DATABASE_USER",
		"Database.Password":       "DATABASE_PASSWORD",
		"Database.Name":           "DATABASE_NAME",
		"Database.SSLMode":        "DATABASE_SSLMODE",
		"Database.MigrationsPath": "DATABASE_MIGRATIONS_PATH",
		"Server.Port":             "HTTP_PORT",
		"Server.GRPCPort":         "GRPC_PORT",
		"Storage.Driver":          "STORAGE_DRIVER",
		"Storage.Endpoint":        "S3_ENDPOINT",
		"Storage.Region":          "S3_REGION",
		"Storage.Bucket":          "S3_BUCKET",
		"Storage.AccessKeyID":     "S3_ACCESS_KEY_ID",
		"Storage.SecretAccessKey": "S3_SECRET_ACCESS_KEY",
		"Storage.UseSSL":          "S3_USE_SSL",
		"Storage.UsePathStyle":    "S3_USE_PATH_STYLE",
		"Storage.PublicBaseURL":   "S3_PUBLIC_BASE_URL",
		"Storage.UploadTimeout":   "STORAGE_UPLOAD_TIMEOUT",
		"Upload.MaxUploadBytes":   "UPLOAD_MAX_BYTES",
		"Auth.JWTSecret":          "JWT_SECRET",
		"Auth.Issuer":             "JWT_ISSUER",
		"Redis.Addr":              "REDIS_ADDR",
		"Redis.Password":          "REDIS_PASSWORD",
		"Log.Level":               "LOG_LEVEL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	// Читаем конфигурацию из файла
	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: using only environment variables: %v\n", err)
	}

	cfg := Config{Log: *logger.DefaultConfig()}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Установка значений по умолчанию
func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "2525"
	}
	if c.Server.GRPCPort == "" {
		c.Server.GRPCPort = "50051"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = 30 * time.Minute
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MigrationsPath == "" {
		c.Database.MigrationsPath = "file://migrations"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverS3
	}
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	if c.Storage.Timeout <= 0 {
		c.Storage.Timeout = 60 * time.Second
	}
	if c.Upload.MaxUploadBytes <= 0 {
		c.Upload.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Upload.MaxFilesPerRequest <= 0 {
		c.Upload.MaxFilesPerRequest = DefaultMaxFilesPerRequest
	}
	if c.Storage.UploadTimeout <= 0 {
		c.Storage.UploadTimeout = uploadTimeout(c.Upload.MaxUploadBytes, c.Storage.Timeout)
	}
	if c.Redis.TTL <= 0 {
		c.Redis.TTL = 5 * time.Minute
	}
}

// uploadTimeout - время на передачу maxBytes со скоростью MinUploadRate плюс base
func uploadTimeout(maxBytes int64, base time.Duration) time.Duration {
	return base + time.Duration(maxBytes/MinUploadRate)*time.Second
}

// Validate проверяет, что все необходимые поля заполнены
func (c *Config) Validate() error {
	if c.Database.Host == "" ||
		c.Database.Port == "" ||
		c.Database.User == "" ||
		c.Database.Name == "" {
		return fmt.Errorf("database configuration is incomplete: host=%s, port=%s, user=%s, name=%s",
			c.Database.Host, c.Database.Port, c.Database.User, c.Database.Name)
	}

	switch c.Storage.Driver {
	case DriverS3:
		if err := c.S3().Validate(); err != nil {
			return fmt.Errorf("storage configuration is invalid: %w", err)
		}
	case DriverMinio:
		if err := c.Minio().Validate(); err != nil {
			return fmt.Errorf("storage configuration is invalid: %w", err)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth configuration is incomplete: jwt secret is required")
	}

	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log configuration is invalid: %w", err)
	}

	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

// GetURL - адрес в формате, который ожидает golang-migrate.
// Логин и пароль экранируются, в них допустимы "@", "/" и ":".
func (c *DatabaseConfig) GetURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

func (c *Config) S3() *s3.Config {
	return &s3.Config{
		Endpoint:        c.Storage.Endpoint,
		Region:          c.Storage.Region,
		Bucket:          c.Storage.Bucket,
		AccessKeyID:     c.Storage.AccessKeyID,
		SecretAccessKey: c.Storage.SecretAccessKey,
		UsePathStyle:    c.Storage.UsePathStyle,
		PublicBaseURL:   c.Storage.PublicBaseURL,
		Timeout:         c.Storage.Timeout,
		PutTimeout:      c.Storage.UploadTimeout,
	}
}

func (c *Config) Minio() *minio.Config {
	return &minio.Config{
		Endpoint:        c.Storage.Endpoint,
		Region:          c.Storage.Region,
		Bucket:          c.Storage.Bucket,
		AccessKeyID:     c.Storage.AccessKeyID,
		SecretAccessKey: c.Storage.SecretAccessKey,
		UseSSL:          c.Storage.UseSSL,
		PublicBaseURL:   c.Storage.PublicBaseURL,
		Timeout:         c.Storage.Timeout,
		PutTimeout:      c.Storage.UploadTimeout,
	}
}
