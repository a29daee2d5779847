package object

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
)

// Config S3 兼容对象存储配置。
type Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// Store S3 兼容对象存储（附件二进制内容落到这里，数据库只存元数据）。
type Store struct {
	client *s3.S3
	bucket string
}

// NewStore 创建对象存储客户端。
func NewStore(cfg Config) (*Store, error) {
	sess, err := session.NewSession(&aws.Config{
		Region:           aws.String(cfg.Region),
		Endpoint:         aws.String(cfg.Endpoint),
		S3ForcePathStyle: aws.Bool(cfg.ForcePathStyle),
		Credentials: credentials.NewChainCredentials([]credentials.Provider{
			&credentials.StaticProvider{
				Value: credentials.Value{
					AccessKeyID:     cfg.AccessKey,
					SecretAccessKey: cfg.SecretKey,
				},
			},
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 session: %w", err)
	}
	return &Store{
		client: s3.New(sess),
		bucket: cfg.Bucket,
	}, nil
}

// Put 上传对象。
func (s *Store) Put(key string, contentType string, data []byte) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(&s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

// Get 下载对象内容。
func (s *Store) Get(key string) ([]byte, error) {
	resp, err := s.client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

// Delete 删除对象。
func (s *Store) Delete(key string) error {
	_, err := s.client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// GenerateKey 按当前日期生成附件对象键：attachments/YYYY/MM/DD/UUID/filename。
func GenerateKey(filename string) string {
	now := time.Now().UTC()
	if filename == "" {
		filename = "unnamed"
	}
	return fmt.Sprintf("attachments/%04d/%02d/%02d/%s/%s",
		now.Year(), now.Month(), now.Day(),
		uuid.New().String(), path.Base(filename))
}
