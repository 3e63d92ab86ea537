package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/postpilothq/postpilot/internal/models"
	"github.com/postpilothq/postpilot/internal/repository"
)

type ConnectionService interface {
	List(ctx context.Context, ownerID int64) ([]*models.Connection, error)
	Remove(ctx context.Context, ownerID, connectionID int64) error
}

type connectionService struct {
	cr repository.ConnectionRepository
}

func NewConnectionService(cr repository.ConnectionRepository) ConnectionService {
	return &connectionService{cr: cr}
}

func (s *connectionService) List(ctx context.Context, ownerID int64) ([]*models.Connection, error) {
	return s.cr.ListByOwnerID(ctx, ownerID)
}

func (s *connectionService) Remove(ctx context.Context, ownerID, connectionID int64) error {
	ok, err := s.cr.CheckByOwnerID(ctx, connectionID, ownerID)
	if err != nil {
		return err
	}
	if !ok {
		err = errors.New("connection doesn't exist")
		slog.Info(err.Error())
		return err
	}
	return s.cr.Remove(ctx, connectionID)
}
