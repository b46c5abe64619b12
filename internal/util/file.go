package util

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// GenerateUniqueFilename 生成唯一的文件名，保留原扩展名
func GenerateUniqueFilename(originalFilename string) string {
	ext := strings.ToLower(filepath.Ext(originalFilename))
	return uuid.NewString() + ext
}

// CampaignImagePath 活动图片在存储中的路径
func CampaignImagePath(originalFilename string) string {
	return path.Join("campaigns", GenerateUniqueFilename(originalFilename))
}

// IsImageFile 只接受常见图片格式
func IsImageFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	}
	return false
}
