package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"RateCast/internal/domain/models"
)

// FileModelStore keeps one JSON document per pipeline under <dir>/<trained_on>/<entity>.json.
type FileModelStore struct {
	dir string
}

func NewFileModelStore(dir string) *FileModelStore {
	return &FileModelStore{dir: dir}
}

func (s *FileModelStore) path(entityID, date string) (string, error) {
	if entityID == "" || strings.ContainsAny(entityID, `/\`) || strings.Contains(entityID, "..") {
		return "", fmt.Errorf("invalid entity id %q", entityID)
	}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return "", fmt.Errorf("invalid model date %q: %w", date, err)
	}
	return filepath.Join(s.dir, date, entityID+".json"), nil
}

// Save writes to a temp file and renames it so a concurrent Load never sees a partial document.
func (s *FileModelStore) Save(_ context.Context, p *models.TrainedPipeline) error {
	path, err := s.path(p.EntityID, p.TrainedOn)
	if err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pipeline: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), p.EntityID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp model: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close model: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish model: %w", err)
	}
	return nil
}

func (s *FileModelStore) Load(_ context.Context, entityID, date string) (*models.TrainedPipeline, error) {
	path, err := s.path(entityID, date)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &models.ModelNotFoundError{EntityID: entityID, Stage: models.StagePredict, Date: date}
		}
		return nil, fmt.Errorf("read model: %w", err)
	}
	var p models.TrainedPipeline
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	return &p, nil
}
