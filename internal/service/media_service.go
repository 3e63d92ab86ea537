package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	gonanoid "github.com/matoous/go-nanoid/v2"
	config "github.com/postpilothq/postpilot/configs"
	"github.com/postpilothq/postpilot/internal/models"
	"github.com/postpilothq/postpilot/internal/repository"
)

// MediaService stores uploaded images and records the asset row whose
// public URL a scheduled post references.
type MediaService interface {
	Upload(ctx context.Context, ownerID int64, file *multipart.FileHeader) (*models.MediaAsset, error)
	List(ctx context.Context, ownerID int64) ([]*models.MediaAsset, error)
}

type mediaService struct {
	cfg config.Config
	ma  repository.MediaAssetRepository
	r2  *R2Service
}

func NewMediaService(cfg config.Config, ma repository.MediaAssetRepository, r2 *R2Service) MediaService {
	return &mediaService{cfg: cfg, ma: ma, r2: r2}
}

var allowedTypes = map[string]struct{}{
	"jpeg": {}, "jpg": {}, "png": {}, "webp": {},
}

func (s *mediaService) Upload(ctx context.Context, ownerID int64, file *multipart.FileHeader) (*models.MediaAsset, error) {
	fileContent, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	defer fileContent.Close()

	fileBytes, err := io.ReadAll(fileContent)
	if err != nil {
		return nil, fmt.Errorf("error reading file content: %w", err)
	}

	fileType, err := filetype.Match(fileBytes)
	if err != nil || fileType == types.Unknown {
		return nil, fmt.Errorf("unsupported file type")
	}
	if _, ok := allowedTypes[fileType.Extension]; !ok {
		return nil, fmt.Errorf("file type %s is not allowed", fileType.Extension)
	}

	key, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	if err := s.r2.Upload(ctx, key, fileBytes, fileType.MIME.Value); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("error uploading file: %w", err)
	}

	asset := &models.MediaAsset{
		OwnerID:  ownerID,
		FileName: key,
		FileType: fileType.MIME.Value,
		FileSize: int64(len(fileBytes)),
		FileURL:  fmt.Sprintf("%s/%s", s.cfg.R2.PublicURL, key),
	}

	assetID, err := s.ma.Create(ctx, asset)
	if err != nil {
		return nil, err
	}
	asset.ID = assetID

	return asset, nil
}

func (s *mediaService) List(ctx context.Context, ownerID int64) ([]*models.MediaAsset, error) {
	return s.ma.ListByOwnerID(ctx, ownerID)
}
