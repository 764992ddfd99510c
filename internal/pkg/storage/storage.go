package storage

import (
	"context"
	"io"
	"time"
)

// PutOptions 上传对象的可选参数
// Size 已知时填精确字节数，未知填 -1 由后端分块
type PutOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo 对象基本信息
type ObjectInfo struct {
	Key  string
	Size int64
	ETag string
	URL  string
}

// Storage 证据文件的对象存储抽象
// 全部走流式读写，不落本地磁盘
type Storage interface {
	Put(ctx context.Context, key string, r io.Reader, opt PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	// PresignGet 返回限时下载链接，门户侧无凭据也可访问
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}
