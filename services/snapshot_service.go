package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/openscrim/tournament-engine/models"
	"github.com/openscrim/tournament-engine/storage"
)

// SnapshotArchiver persists the final bracket of a completed tournament to
// durable storage. Failures never roll back the completion itself.
type SnapshotArchiver interface {
	ArchiveBracket(ctx context.Context, t *models.Tournament, matches []*models.Match) error
}

// BracketSnapshot is the archived document layout.
type BracketSnapshot struct {
	Tournament *models.Tournament `json:"tournament"`
	Matches    []*models.Match    `json:"matches"`
	ArchivedAt time.Time          `json:"archived_at"`
}

type uploaderArchiver struct {
	uploader storage.FileUploader
	logger   *slog.Logger
}

// NewSnapshotArchiver archives bracket snapshots through a FileUploader.
func NewSnapshotArchiver(uploader storage.FileUploader, logger *slog.Logger) SnapshotArchiver {
	return &uploaderArchiver{uploader: uploader, logger: logger}
}

func (a *uploaderArchiver) ArchiveBracket(ctx context.Context, t *models.Tournament, matches []*models.Match) error {
	snapshot := BracketSnapshot{
		Tournament: t,
		Matches:    matches,
		ArchivedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encoding bracket snapshot: %w", err)
	}

	key := fmt.Sprintf("snapshots/tournament_%d.json", t.ID)
	result, err := a.uploader.Upload(ctx, key, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("uploading bracket snapshot: %w", err)
	}

	a.logger.Info("bracket snapshot archived",
		slog.Int("tournament_id", t.ID),
		slog.String("key", result.Key),
		slog.String("location", result.Location),
	)
	return nil
}
