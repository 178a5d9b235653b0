package storage

import (
	"context"
	"fmt"
	"time"

	"RoomFM/config"
	"RoomFM/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var minioClient *minio.Client

// InitMinio 初始化 MinIO 客户端
// 音频文件由后台管理流程上传到对象存储，本引擎只做只读代理
func InitMinio(cfg *config.Config) error {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	// 检查存储桶是否可达
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		return fmt.Errorf("存储桶不存在: %s", cfg.MinioBucket)
	}

	minioClient = client
	logger.Info("MinIO connected",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket))
	return nil
}

// GetMinioClient 获取 MinIO 客户端，未初始化时为 nil
func GetMinioClient() *minio.Client {
	return minioClient
}

// GetAudioObject 打开音频对象的只读流
func GetAudioObject(ctx context.Context, bucket, objectPath string) (*minio.Object, error) {
	if minioClient == nil {
		return nil, fmt.Errorf("MinIO client not initialized")
	}
	return minioClient.GetObject(ctx, bucket, objectPath, minio.GetObjectOptions{})
}
