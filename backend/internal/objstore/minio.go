package objstore

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	BucketBanner = "file-banner"
	BucketAvatar = "avatar"
)

// ObjectStore 横幅/头像等二进制对象的存储。
// 对象名由调用方生成（uuid），公开读取走 PublicURL。
type ObjectStore struct {
	client *minio.Client
}

func NewObjectStore(endpoint, accessKey, secretKey string, useSSL bool) (*ObjectStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return &ObjectStore{client: client}, nil
}

// EnsureBuckets 启动时建桶（已存在则跳过）
func (s *ObjectStore) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{BucketBanner, BucketAvatar} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return err
		}
	}
	return nil
}

func (s *ObjectStore) Upload(ctx context.Context, bucket, object string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, bucket, object, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (s *ObjectStore) Remove(ctx context.Context, bucket, object string) error {
	return s.client.RemoveObject(ctx, bucket, object, minio.RemoveObjectOptions{})
}

// PublicURL 拼出匿名可读地址；桶策略需允许公开读取
func (s *ObjectStore) PublicURL(bucket, object string) string {
	return fmt.Sprintf("%s/%s/%s", s.client.EndpointURL().String(), bucket, object)
}
