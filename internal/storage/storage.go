package storage

import (
	"context"
	"crowdfunding-platform/config"
	"fmt"
	"mime/multipart"
)

// Uploader 保存上传文件并返回可访问的地址
type Uploader interface {
	UploadFile(ctx context.Context, file *multipart.FileHeader, path string) (string, error)
}

// New 根据配置选择存储后端
func New(ctx context.Context, cfg config.Config) (Uploader, error) {
	switch cfg.StorageDriver {
	case "", "local":
		return NewLocalStorage(cfg.LocalStoragePath)
	case "s3":
		return NewS3Client(cfg.S3Region, cfg.S3Bucket)
	case "gcs":
		return NewGCSClient(ctx, cfg.GCSBucketName, cfg.GCSCredentialsFile)
	default:
		return nil, fmt.Errorf("未知的存储类型: %s", cfg.StorageDriver)
	}
}
