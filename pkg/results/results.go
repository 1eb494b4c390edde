package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/taleweave/fable/pkg/log"
	"github.com/taleweave/fable/pkg/store"
	"github.com/taleweave/fable/pkg/types"
)

const resultKeyPrefix = "results:"

// ErrNoResults is returned when neither tier holds results for a task.
var ErrNoResults = errors.New("results: not found")

// exportEnvelope is the durable file layout.
type exportEnvelope struct {
	TaskID     string              `json:"task_id"`
	ExportedAt time.Time           `json:"exported_at"`
	Data       types.PackedResults `json:"data"`
}

// ResultStore persists packed translation results in two tiers: a fast
// store blob for serving and a timestamped JSON file for durability.
type ResultStore struct {
	store  store.Store
	dir    string
	logger zerolog.Logger
}

// NewResultStore creates the store and ensures the export directory exists.
func NewResultStore(st store.Store, dir string) (*ResultStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results directory %s: %w", dir, err)
	}
	return &ResultStore{
		store:  st,
		dir:    dir,
		logger: log.WithComponent("results"),
	}, nil
}

// Store writes packed results to the fast tier and then exports a durable
// file. The fast-tier write decides the outcome: its failure fails the
// call, while an export failure after a successful fast write is logged
// and the call still succeeds.
func (r *ResultStore) Store(ctx context.Context, taskID string, packed types.PackedResults) error {
	blob, err := json.Marshal(packed)
	if err != nil {
		return fmt.Errorf("failed to encode results for task %s: %w", taskID, err)
	}

	if err := r.store.Set(ctx, resultKeyPrefix+taskID, string(blob), 0); err != nil {
		return fmt.Errorf("failed to store results for task %s: %w", taskID, err)
	}

	if err := r.export(taskID, packed); err != nil {
		r.logger.Error().
			Str("task_id", taskID).
			Err(err).
			Msg("Failed to export results file")
	}

	r.logger.Info().
		Str("task_id", taskID).
		Int("languages", len(packed)).
		Msg("Stored results")
	return nil
}

// Get returns packed results from the fast tier, falling back to the most
// recently modified export file. Returns ErrNoResults when neither exists.
func (r *ResultStore) Get(ctx context.Context, taskID string) (types.PackedResults, error) {
	blob, err := r.store.Get(ctx, resultKeyPrefix+taskID)
	if err == nil {
		var packed types.PackedResults
		if err := json.Unmarshal([]byte(blob), &packed); err != nil {
			return nil, fmt.Errorf("failed to decode results for task %s: %w", taskID, err)
		}
		return packed, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to read results for task %s: %w", taskID, err)
	}

	packed, err := r.readNewestExport(taskID)
	if err != nil {
		return nil, err
	}
	if packed == nil {
		return nil, fmt.Errorf("%w: task %s", ErrNoResults, taskID)
	}
	return packed, nil
}

// Delete removes the fast-tier blob. Export files are kept on disk for
// offline audit.
func (r *ResultStore) Delete(ctx context.Context, taskID string) error {
	if err := r.store.Delete(ctx, resultKeyPrefix+taskID); err != nil {
		return fmt.Errorf("failed to delete results for task %s: %w", taskID, err)
	}
	return nil
}

func (r *ResultStore) export(taskID string, packed types.PackedResults) error {
	now := time.Now().UTC()
	envelope := exportEnvelope{
		TaskID:     taskID,
		ExportedAt: now,
		Data:       packed,
	}

	blob, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}

	name := fmt.Sprintf("task_%s_%s.json", taskID, now.Format("20060102_150405"))
	path := filepath.Join(r.dir, name)
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// readNewestExport returns the most recently modified export file for a
// task, or nil when none exists.
func (r *ResultStore) readNewestExport(taskID string) (types.PackedResults, error) {
	pattern := filepath.Join(r.dir, fmt.Sprintf("task_%s_*.json", taskID))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search exports for task %s: %w", taskID, err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	newest := ""
	var newestMod time.Time
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = path
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return nil, nil
	}

	blob, err := os.ReadFile(newest)
	if err != nil {
		return nil, fmt.Errorf("failed to read export %s: %w", newest, err)
	}

	var envelope exportEnvelope
	if err := json.Unmarshal(blob, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode export %s: %w", newest, err)
	}

	r.logger.Info().
		Str("task_id", taskID).
		Str("file", filepath.Base(newest)).
		Msg("Served results from export file")
	return envelope.Data, nil
}

// Lookup resolves one piece of content from a packed structure: TEXT and
// AUDIO live under the source language (AUDIO resolves to the transcript
// text), TRANSLATION under each target language.
func Lookup(packed types.PackedResults, lang, fileID string, source types.ResultSource) (string, bool) {
	files, ok := packed[lang]
	if !ok {
		return "", false
	}
	entry, ok := files[fileID]
	if !ok {
		return "", false
	}

	switch source {
	case types.SourceText:
		if entry.Text != nil {
			return *entry.Text, true
		}
	case types.SourceAudio:
		if entry.Audio != nil {
			return entry.Audio.Text, true
		}
	case types.SourceTranslation:
		if entry.Translation != nil {
			return *entry.Translation, true
		}
	}
	return "", false
}
