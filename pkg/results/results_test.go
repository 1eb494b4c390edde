package results

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taleweave/fable/pkg/store"
	"github.com/taleweave/fable/pkg/types"
)

func newTestResults(t *testing.T) (*ResultStore, store.Store, string) {
	t.Helper()
	mr := miniredis.RunT(t)
	st, err := store.NewRedisStore(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	dir := t.TempDir()
	rs, err := NewResultStore(st, dir)
	require.NoError(t, err)
	return rs, st, dir
}

func strptr(s string) *string { return &s }

func samplePacked() types.PackedResults {
	return types.PackedResults{
		"en": {
			"segment_001": types.FileResult{
				Text: strptr("Once upon a time"),
				Audio: &types.Transcript{
					Text: "once upon a time",
					Segments: []types.TranscriptSegment{
						{ID: 0, Start: 0, End: 2.4, Text: "once upon a time"},
					},
				},
			},
		},
		"ja": {
			"segment_001": types.FileResult{
				Translation: strptr("昔々あるところに"),
			},
		},
	}
}

func TestStoreWritesBothTiers(t *testing.T) {
	rs, st, dir := newTestResults(t)
	ctx := context.Background()

	require.NoError(t, rs.Store(ctx, "task-1", samplePacked()))

	// Fast tier holds the packed blob.
	blob, err := st.Get(ctx, "results:task-1")
	require.NoError(t, err)
	var packed types.PackedResults
	require.NoError(t, json.Unmarshal([]byte(blob), &packed))
	assert.Equal(t, samplePacked(), packed)

	// Durable tier holds a timestamped envelope.
	matches, err := filepath.Glob(filepath.Join(dir, "task_task-1_*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	raw, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	var envelope struct {
		TaskID     string              `json:"task_id"`
		ExportedAt time.Time           `json:"exported_at"`
		Data       types.PackedResults `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &envelope))
	assert.Equal(t, "task-1", envelope.TaskID)
	assert.False(t, envelope.ExportedAt.IsZero())
	assert.Equal(t, samplePacked(), envelope.Data)
}

func TestGetPrefersFastTier(t *testing.T) {
	rs, st, _ := newTestResults(t)
	ctx := context.Background()

	require.NoError(t, rs.Store(ctx, "task-1", samplePacked()))

	// Poison the durable tier to prove the fast tier is read first.
	fresh := types.PackedResults{"en": {"other": types.FileResult{Text: strptr("stale")}}}
	blob, err := json.Marshal(fresh)
	require.NoError(t, err)
	require.NoError(t, st.Set(ctx, "results:task-1", string(blob), 0))

	got, err := rs.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, fresh, got)
}

func TestGetFallsBackToNewestExport(t *testing.T) {
	rs, _, dir := newTestResults(t)
	ctx := context.Background()

	require.NoError(t, rs.Store(ctx, "task-1", samplePacked()))

	// Write an older export by hand and age it.
	older := exportEnvelope{
		TaskID:     "task-1",
		ExportedAt: time.Now().UTC().Add(-time.Hour),
		Data:       types.PackedResults{"en": {"old": types.FileResult{Text: strptr("old")}}},
	}
	raw, err := json.Marshal(older)
	require.NoError(t, err)
	oldPath := filepath.Join(dir, "task_task-1_20240101_000000.json")
	require.NoError(t, os.WriteFile(oldPath, raw, 0o644))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, past, past))

	// Flush the fast tier; Get must serve the newest export.
	require.NoError(t, rs.Delete(ctx, "task-1"))

	got, err := rs.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, samplePacked(), got)
}

func TestGetMissingEverywhere(t *testing.T) {
	rs, _, _ := newTestResults(t)

	_, err := rs.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestDeleteOnlyFastTier(t *testing.T) {
	rs, st, dir := newTestResults(t)
	ctx := context.Background()

	require.NoError(t, rs.Store(ctx, "task-1", samplePacked()))
	require.NoError(t, rs.Delete(ctx, "task-1"))

	_, err := st.Get(ctx, "results:task-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	matches, err := filepath.Glob(filepath.Join(dir, "task_task-1_*.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 1, "export files are kept for audit")
}

func TestLookup(t *testing.T) {
	packed := samplePacked()
	// A file that produced no speech: transcript exists but is empty.
	packed["en"]["segment_002"] = types.FileResult{Text: strptr("")}

	tests := []struct {
		name   string
		lang   string
		fileID string
		source types.ResultSource
		want   string
		wantOK bool
	}{
		{"source text", "en", "segment_001", types.SourceText, "Once upon a time", true},
		{"source audio", "en", "segment_001", types.SourceAudio, "once upon a time", true},
		{"target translation", "ja", "segment_001", types.SourceTranslation, "昔々あるところに", true},
		{"empty text still present", "en", "segment_002", types.SourceText, "", true},
		{"translation on source lang", "en", "segment_001", types.SourceTranslation, "", false},
		{"text on target lang", "ja", "segment_001", types.SourceText, "", false},
		{"language not in results", "fr", "segment_001", types.SourceText, "", false},
		{"unknown file", "en", "segment_999", types.SourceText, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Lookup(packed, tt.lang, tt.fileID, tt.source)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
