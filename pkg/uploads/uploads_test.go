package uploads

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taleweave/fable/pkg/config"
)

func newTestManager(t *testing.T, maxSize int64) *Manager {
	t.Helper()
	cfg := &config.Config{
		UploadDir:           filepath.Join(t.TempDir(), "uploads"),
		MaxFileSize:         maxSize,
		AllowedAudioFormats: []string{".mp3"},
	}
	m, err := NewManager(cfg)
	require.NoError(t, err)
	return m
}

func TestSaveAudio(t *testing.T) {
	m := newTestManager(t, 1<<20)

	path, err := m.SaveAudio("segment_001.mp3", strings.NewReader("audio-bytes"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(m.Dir(), "segment_001.mp3"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "audio-bytes", string(data))
}

func TestSaveAudioStripsDirectories(t *testing.T) {
	m := newTestManager(t, 1<<20)

	path, err := m.SaveAudio("../../etc/evil.mp3", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(m.Dir(), "evil.mp3"), path)
}

func TestSaveAudioOverwritesDuplicate(t *testing.T) {
	m := newTestManager(t, 1<<20)

	_, err := m.SaveAudio("a.mp3", strings.NewReader("first"))
	require.NoError(t, err)
	path, err := m.SaveAudio("a.mp3", strings.NewReader("second"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestSaveAudioRejectsFormat(t *testing.T) {
	m := newTestManager(t, 1<<20)

	_, err := m.SaveAudio("notes.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	// Extension matching is case-insensitive; the stored name keeps the
	// original casing.
	path, err := m.SaveAudio("LOUD.MP3", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "LOUD.MP3", filepath.Base(path))
}

func TestSaveAudioRejectsOversize(t *testing.T) {
	m := newTestManager(t, 8)

	_, err := m.SaveAudio("big.mp3", strings.NewReader("way more than eight bytes"))
	assert.ErrorIs(t, err, ErrFileTooLarge)

	// Nothing half-written may remain.
	_, statErr := os.Stat(filepath.Join(m.Dir(), "big.mp3"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestParseReference(t *testing.T) {
	m := newTestManager(t, 1<<20)

	ref, err := m.ParseReference(strings.NewReader(`{"segment_001": "Once upon a time"}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"segment_001": "Once upon a time"}, ref)

	_, err = m.ParseReference(strings.NewReader("not json"))
	assert.ErrorIs(t, err, ErrBadReference)

	_, err = m.ParseReference(strings.NewReader(`{"segment_001": 42}`))
	assert.ErrorIs(t, err, ErrBadReference)
}

func buildZip(t *testing.T, entries map[string]string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return &buf
}

func TestExpandArchive(t *testing.T) {
	m := newTestManager(t, 1<<20)

	bundle := buildZip(t, map[string]string{
		"story/audio/segment_001.mp3": "one",
		"story/audio/segment_002.mp3": "two",
		"story/reference.json":        `{"segment_001": "Hello"}`,
		"story/notes.txt":             "ignore me",
		"__MACOSX/._segment_001.mp3":  "resource fork",
	})

	audio, text, err := m.ExpandArchive(bundle)
	require.NoError(t, err)
	require.Len(t, audio, 2)
	for _, p := range audio {
		assert.Equal(t, m.Dir(), filepath.Dir(p), "entries must land flat in the upload dir")
	}
	assert.Equal(t, map[string]string{"segment_001": "Hello"}, text)

	names, err := os.ReadDir(m.Dir())
	require.NoError(t, err)
	assert.Len(t, names, 2, "skipped entries must not be written")
}

func TestExpandArchiveWithoutReference(t *testing.T) {
	m := newTestManager(t, 1<<20)

	audio, text, err := m.ExpandArchive(buildZip(t, map[string]string{"a.mp3": "x"}))
	require.NoError(t, err)
	assert.Len(t, audio, 1)
	assert.Nil(t, text)
}

func TestExpandArchiveRejectsGarbage(t *testing.T) {
	m := newTestManager(t, 1<<20)

	_, _, err := m.ExpandArchive(strings.NewReader("this is not a zip"))
	assert.ErrorIs(t, err, ErrBadArchive)
}

func TestExpandArchiveRejectsOversize(t *testing.T) {
	m := newTestManager(t, 16)

	bundle := buildZip(t, map[string]string{"a.mp3": strings.Repeat("x", 64)})
	_, _, err := m.ExpandArchive(bundle)
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestSweep(t *testing.T) {
	m := newTestManager(t, 1<<20)

	stale, err := m.SaveAudio("stale.mp3", strings.NewReader("x"))
	require.NoError(t, err)
	fresh, err := m.SaveAudio("fresh.mp3", strings.NewReader("x"))
	require.NoError(t, err)

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	removed, err := m.Sweep(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}
