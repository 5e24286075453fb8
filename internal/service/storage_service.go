package service

import (
	"academy_backend/internal/config"
	"academy_backend/internal/lesson"
	"academy_backend/internal/util"
	"academy_backend/pkg/logger"
	"academy_backend/pkg/monitoring"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// StorageProvider 定义通用存储接口，Upload 返回可长期访问的 URL
type StorageProvider interface {
	Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error)
	GetURL(filename string) string
}

// LocalStorageProvider 本地存储实现
type LocalStorageProvider struct {
	Config *config.StorageConfig
}

func (p *LocalStorageProvider) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	dst := filepath.Join(p.Config.LocalPath, filepath.FromSlash(filename))
	dir := filepath.Dir(dst)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", err
		}
	}

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err = io.Copy(out, reader); err != nil {
		return "", err
	}

	return p.GetURL(filename), nil
}

func (p *LocalStorageProvider) GetURL(filename string) string {
	return "/uploads/" + filename
}

// MinioStorageProvider MinIO存储实现
type MinioStorageProvider struct {
	Config *config.StorageConfig
	Client *minio.Client
}

func NewMinioStorageProvider(cfg *config.StorageConfig) (*MinioStorageProvider, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioSecure,
	})
	if err != nil {
		return nil, err
	}
	return &MinioStorageProvider{Config: cfg, Client: client}, nil
}

func (p *MinioStorageProvider) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	_, err := p.Client.PutObject(ctx, p.Config.MinioBucket, filename, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return p.GetURL(filename), nil
}

func (p *MinioStorageProvider) GetURL(filename string) string {
	return p.Client.EndpointURL().String() + "/" + p.Config.MinioBucket + "/" + filename
}

// OSSStorageProvider 阿里云OSS存储实现
type OSSStorageProvider struct {
	Config *config.StorageConfig
	Client *oss.Client
}

func NewOSSStorageProvider(cfg *config.StorageConfig) (*OSSStorageProvider, error) {
	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, err
	}
	return &OSSStorageProvider{Config: cfg, Client: client}, nil
}

func (p *OSSStorageProvider) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return "", err
	}

	if err = bucket.PutObject(filename, reader, oss.ContentType(contentType)); err != nil {
		return "", err
	}
	return p.GetURL(filename), nil
}

func (p *OSSStorageProvider) GetURL(filename string) string {
	return fmt.Sprintf("https://%s.%s/%s", p.Config.OSSBucket, p.Config.OSSEndpoint, filename)
}

// StorageService 存储服务。上传失败时退化为本地预览
type StorageService struct {
	Provider StorageProvider
	Previews PreviewCache
	now      func() time.Time
}

func NewStorageService(cfg *config.Config, previews PreviewCache) *StorageService {
	var provider StorageProvider
	switch cfg.Storage.Type {
	case util.StorageMinio:
		p, err := NewMinioStorageProvider(&cfg.Storage)
		if err != nil {
			logger.Log.Error("Failed to init minio storage, falling back to local", zap.Error(err))
		} else {
			provider = p
		}
	case util.StorageOSS:
		p, err := NewOSSStorageProvider(&cfg.Storage)
		if err != nil {
			logger.Log.Error("Failed to init oss storage, falling back to local", zap.Error(err))
		} else {
			provider = p
		}
	}

	if provider == nil {
		provider = &LocalStorageProvider{Config: &cfg.Storage}
	}

	return &StorageService{Provider: provider, Previews: previews, now: time.Now}
}

// PersonaImagePath 约定的对象路径 {userId}/personas/{lessonId}/{毫秒时间戳}-{8位随机}{扩展名}
func (s *StorageService) PersonaImagePath(userID, lessonID, ext string) string {
	return fmt.Sprintf("%s/personas/%s/%d-%s%s", userID, lessonID, s.now().UnixMilli(), uuid.NewString()[:8], ext)
}

// UploadPersonaImage 上传成功返回 Stored；失败时写入预览缓存并返回 LocalOnly
func (s *StorageService) UploadPersonaImage(ctx context.Context, userID, lessonID, filename, contentType string, data []byte) (lesson.Attachment, error) {
	path := s.PersonaImagePath(userID, lessonID, util.ImageExt(filename, contentType))
	url, err := s.Provider.Upload(ctx, path, bytes.NewReader(data), int64(len(data)), contentType)
	if err == nil {
		monitoring.UploadCounter.WithLabelValues("stored").Inc()
		return lesson.Stored{URL: url}, nil
	}

	logger.FromContext(ctx, logger.ForLesson(userID, lessonID)).Warn("Persona image upload failed, keeping local preview",
		zap.String("path", path),
		zap.Error(err))

	if s.Previews == nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}
	handle, perr := s.Previews.Put(ctx, data, contentType)
	if perr != nil {
		return nil, fmt.Errorf("upload image: %w (preview: %v)", err, perr)
	}
	monitoring.UploadCounter.WithLabelValues("local_only").Inc()
	return lesson.LocalOnly{Handle: handle}, nil
}
