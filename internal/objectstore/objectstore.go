// Package objectstore 候选人照片上传，返回可公开访问的下载地址
package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// ImageStore 对象存储
type ImageStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
}

// BucketStore Firebase Storage 存储桶，下载地址带 firebaseStorageDownloadTokens 令牌
type BucketStore struct {
	bucket     *storage.BucketHandle
	bucketName string
	prefix     string
}

func NewBucketStore(bucket *storage.BucketHandle, bucketName, prefix string) *BucketStore {
	return &BucketStore{bucket: bucket, bucketName: bucketName, prefix: strings.Trim(prefix, "/")}
}

func (s *BucketStore) objectName(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *BucketStore) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	name := s.objectName(key)
	token := uuid.NewString()

	w := s.bucket.Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{"firebaseStorageDownloadTokens": token}

	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", fmt.Errorf("上传文件失败: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("上传文件失败: %w", err)
	}
	return DownloadURL(s.bucketName, name, token), nil
}

// DownloadURL Firebase Storage 公共下载地址
func DownloadURL(bucket, object, token string) string {
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket, url.PathEscape(object), url.QueryEscape(token))
}

// MemoryStore 进程内对象存储
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (s *MemoryStore) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("读取文件失败: %w", err)
	}

	s.mu.Lock()
	s.objects[key] = data
	s.types[key] = contentType
	s.mu.Unlock()
	return "memory://" + key, nil
}

// Get 返回对象内容及类型
func (s *MemoryStore) Get(key string) ([]byte, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.objects[key]
	return data, s.types[key], ok
}
