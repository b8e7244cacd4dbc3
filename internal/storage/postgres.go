package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/sam2engine/internal/config"
)

// PostgresStore persists a segmentation run audit log: one row per
// Segment call, recording the prompt, timings, and the IoU-ranked
// candidates the decoder returned (spec §4.4, §6 "surface decode timing
// and candidate scores for later inspection").
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// PromptPoint is one recorded prompt point, in the encoder's 1024×1024
// input space (the coordinates passed to the decoder).
type PromptPoint struct {
	X     float32 `json:"x"`
	Y     float32 `json:"y"`
	Label int     `json:"label"`
}

// SegmentationRun is one audited Segment call.
type SegmentationRun struct {
	ID            uuid.UUID
	ImageID       string
	SessionID     string
	Points        []PromptPoint
	Width         int
	Height        int
	SelectedIndex int
	IoUScores     []float32
	ProviderUsed  string
	EncodeTimeMs  float64
	DecodeTimeMs  float64
	CreatedAt     time.Time
}

// CreateSegmentationRun records a completed Segment call.
func (s *PostgresStore) CreateSegmentationRun(ctx context.Context, run *SegmentationRun) error {
	run.ID = uuid.New()
	run.CreatedAt = time.Now()

	pointsJSON, err := json.Marshal(run.Points)
	if err != nil {
		return fmt.Errorf("marshal points: %w", err)
	}
	iouJSON, err := json.Marshal(run.IoUScores)
	if err != nil {
		return fmt.Errorf("marshal iou scores: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO segmentation_runs
			(id, image_id, session_id, points, width, height, selected_index, iou_scores, provider_used, encode_time_ms, decode_time_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		run.ID, run.ImageID, run.SessionID, pointsJSON, run.Width, run.Height,
		run.SelectedIndex, iouJSON, run.ProviderUsed, run.EncodeTimeMs, run.DecodeTimeMs, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("create segmentation run: %w", err)
	}
	return nil
}

// GetSegmentationRun fetches one run by ID.
func (s *PostgresStore) GetSegmentationRun(ctx context.Context, id uuid.UUID) (*SegmentationRun, error) {
	var run SegmentationRun
	var pointsJSON, iouJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, image_id, session_id, points, width, height, selected_index, iou_scores, provider_used, encode_time_ms, decode_time_ms, created_at
		 FROM segmentation_runs WHERE id = $1`, id,
	).Scan(&run.ID, &run.ImageID, &run.SessionID, &pointsJSON, &run.Width, &run.Height,
		&run.SelectedIndex, &iouJSON, &run.ProviderUsed, &run.EncodeTimeMs, &run.DecodeTimeMs, &run.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get segmentation run: %w", err)
	}

	if err := json.Unmarshal(pointsJSON, &run.Points); err != nil {
		return nil, fmt.Errorf("unmarshal points: %w", err)
	}
	if err := json.Unmarshal(iouJSON, &run.IoUScores); err != nil {
		return nil, fmt.Errorf("unmarshal iou scores: %w", err)
	}
	return &run, nil
}

// ListSegmentationRuns returns the most recent runs for an image, newest first.
func (s *PostgresStore) ListSegmentationRuns(ctx context.Context, imageID string, limit int) ([]SegmentationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, image_id, session_id, points, width, height, selected_index, iou_scores, provider_used, encode_time_ms, decode_time_ms, created_at
		 FROM segmentation_runs WHERE image_id = $1 ORDER BY created_at DESC LIMIT $2`,
		imageID, limit)
	if err != nil {
		return nil, fmt.Errorf("list segmentation runs: %w", err)
	}
	defer rows.Close()

	var runs []SegmentationRun
	for rows.Next() {
		var run SegmentationRun
		var pointsJSON, iouJSON []byte
		if err := rows.Scan(&run.ID, &run.ImageID, &run.SessionID, &pointsJSON, &run.Width, &run.Height,
			&run.SelectedIndex, &iouJSON, &run.ProviderUsed, &run.EncodeTimeMs, &run.DecodeTimeMs, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan segmentation run: %w", err)
		}
		if err := json.Unmarshal(pointsJSON, &run.Points); err != nil {
			return nil, fmt.Errorf("unmarshal points: %w", err)
		}
		if err := json.Unmarshal(iouJSON, &run.IoUScores); err != nil {
			return nil, fmt.Errorf("unmarshal iou scores: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// DeleteSegmentationRunsForImage purges the audit trail for an image, e.g.
// when its cached embedding is evicted (spec §4.6 clearCache).
func (s *PostgresStore) DeleteSegmentationRunsForImage(ctx context.Context, imageID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM segmentation_runs WHERE image_id = $1`, imageID)
	if err != nil {
		return fmt.Errorf("delete segmentation runs: %w", err)
	}
	return nil
}
