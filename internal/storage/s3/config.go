package s3

import (
	"fmt"
	"time"
)

type Config struct {
	Endpoint        string        `mapstructure:"Endpoint"`
	Region          string        `mapstructure:"Region"`
	Bucket          string        `mapstructure:"Bucket"`
	AccessKeyID     string        `mapstructure:"AccessKeyID"`
	SecretAccessKey string        `mapstructure:"SecretAccessKey"`
	UsePathStyle    bool          `mapstructure:"UsePathStyle"`
	PublicBaseURL   string        `mapstructure:"PublicBaseURL"`
	Timeout         time.Duration `mapstructure:"Timeout"`
	PutTimeout      time.Duration `mapstructure:"PutTimeout"`
}

func (c *Config) Validate() error {
	// Проверяем, что все необходимые поля заполнены
	if c.AccessKeyID == "" {
		return fmt.Errorf("AccessKeyID is required")
	}
	if c.SecretAccessKey == "" {
		return fmt.Errorf("SecretAccessKey is required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("Bucket is required")
	}
	return nil
}
