package uploads

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/taleweave/fable/pkg/config"
	"github.com/taleweave/fable/pkg/log"
)

var (
	// ErrUnsupportedFormat is returned for audio files whose extension
	// is not in the configured set.
	ErrUnsupportedFormat = errors.New("uploads: unsupported audio format")

	// ErrFileTooLarge is returned when a file or archive exceeds the
	// configured size cap.
	ErrFileTooLarge = errors.New("uploads: file exceeds size limit")

	// ErrBadArchive is returned when a ZIP bundle cannot be read.
	ErrBadArchive = errors.New("uploads: invalid archive")

	// ErrBadReference is returned when a reference-text file is not a
	// JSON object of strings.
	ErrBadReference = errors.New("uploads: invalid reference text")
)

// Manager persists uploaded audio and reference files under the upload
// directory. Files are stored flat by base name; a re-upload of the
// same name overwrites.
type Manager struct {
	dir     string
	maxSize int64
	cfg     *config.Config
	logger  zerolog.Logger
}

// NewManager creates the upload directory if needed.
func NewManager(cfg *config.Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &Manager{
		dir:     cfg.UploadDir,
		maxSize: cfg.MaxFileSize,
		cfg:     cfg,
		logger:  log.WithComponent("uploads"),
	}, nil
}

// SaveAudio streams one audio file into the upload directory and
// returns its path. Any directory components in name are discarded.
func (m *Manager) SaveAudio(name string, r io.Reader) (string, error) {
	base := filepath.Base(name)
	if !m.cfg.AudioFormatAllowed(strings.ToLower(filepath.Ext(base))) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, base)
	}

	dest := filepath.Join(m.dir, base)
	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dest, err)
	}

	written, err := io.Copy(f, io.LimitReader(r, m.maxSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if written > m.maxSize {
		os.Remove(dest)
		return "", fmt.Errorf("%w: %s", ErrFileTooLarge, base)
	}

	m.logger.Debug().Str("file", base).Int64("bytes", written).Msg("Saved audio file")
	return dest, nil
}

// ParseReference decodes a reference-text map keyed by file id.
func (m *Manager) ParseReference(r io.Reader) (map[string]string, error) {
	var ref map[string]string
	if err := json.NewDecoder(io.LimitReader(r, m.maxSize)).Decode(&ref); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadReference, err)
	}
	return ref, nil
}

// ExpandArchive unpacks a ZIP bundle: audio entries are persisted like
// direct uploads and a reference JSON, when present, is parsed. Entry
// paths inside the archive are ignored, only base names matter, so a
// crafted archive cannot write outside the upload directory. Entries
// that are neither audio nor JSON are skipped.
func (m *Manager) ExpandArchive(r io.Reader) ([]string, map[string]string, error) {
	tmp, err := os.CreateTemp("", "upload-*.zip")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stage archive: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	size, err := io.Copy(tmp, io.LimitReader(r, m.maxSize+1))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stage archive: %w", err)
	}
	if size > m.maxSize {
		return nil, nil, fmt.Errorf("%w: archive", ErrFileTooLarge)
	}

	zr, err := zip.NewReader(tmp, size)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}

	var audio []string
	var text map[string]string
	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		base := filepath.Base(entry.Name)
		if strings.HasPrefix(base, ".") {
			continue
		}

		switch ext := strings.ToLower(filepath.Ext(base)); {
		case ext == ".json":
			rc, err := entry.Open()
			if err != nil {
				return nil, nil, fmt.Errorf("failed to open archive entry %s: %w", base, err)
			}
			text, err = m.ParseReference(rc)
			rc.Close()
			if err != nil {
				return nil, nil, err
			}
		case m.cfg.AudioFormatAllowed(ext):
			rc, err := entry.Open()
			if err != nil {
				return nil, nil, fmt.Errorf("failed to open archive entry %s: %w", base, err)
			}
			path, err := m.SaveAudio(base, rc)
			rc.Close()
			if err != nil {
				return nil, nil, err
			}
			audio = append(audio, path)
		}
	}

	m.logger.Info().Int("audio_files", len(audio)).Msg("Expanded archive")
	return audio, text, nil
}

// Sweep removes upload files whose modification time is older than the
// window. Returns how many were removed.
func (m *Manager) Sweep(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read upload dir: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, entry.Name())); err != nil {
			m.logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to remove stale upload")
			continue
		}
		removed++
	}
	return removed, nil
}

// Dir returns the managed upload directory.
func (m *Manager) Dir() string {
	return m.dir
}
