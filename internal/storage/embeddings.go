package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"
)

// GetEmbedding returns the stored vector for text under model.
func (s *SQLiteStorage) GetEmbedding(ctx context.Context, model, text string) ([]float32, bool, error) {
	if err := validateContext(ctx); err != nil {
		return nil, false, err
	}
	if err := validateString(model, "model"); err != nil {
		return nil, false, err
	}

	var dims int
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT dims, vector FROM embeddings WHERE model = ? AND text_hash = ?`,
		model, textHash(text)).Scan(&dims, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query embedding: %w", err)
	}

	vec, err := decodeVector(blob, dims)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// SaveEmbedding stores or replaces the vector for text under model.
func (s *SQLiteStorage) SaveEmbedding(ctx context.Context, model, text string, vector []float32) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(model, "model"); err != nil {
		return err
	}
	if err := validateVector(vector); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (model, text_hash, dims, vector, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(model, text_hash) DO UPDATE SET
			dims = excluded.dims,
			vector = excluded.vector,
			created_at = excluded.created_at`,
		model, textHash(text), len(vector), encodeVector(vector), s.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save embedding: %w", err)
	}
	return nil
}

// CountEmbeddings returns how many vectors are stored for model, or for all models when model is empty.
func (s *SQLiteStorage) CountEmbeddings(ctx context.Context, model string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	var err error
	if model == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings WHERE model = ?`, model).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return count, nil
}

// PruneEmbeddings deletes vectors stored before the cutoff and reports how many were removed.
func (s *SQLiteStorage) PruneEmbeddings(ctx context.Context, before time.Time) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE created_at < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune embeddings: %w", err)
	}
	return res.RowsAffected()
}

func textHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(buf []byte, dims int) ([]float32, error) {
	if dims <= 0 || len(buf) != 4*dims {
		return nil, fmt.Errorf("%w: %d bytes for %d dimensions", ErrCorruptVector, len(buf), dims)
	}
	v := make([]float32, dims)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}
