package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/taleweave/fable/pkg/engine"
	"github.com/taleweave/fable/pkg/log"
	"github.com/taleweave/fable/pkg/types"
)

// ErrCancelled is returned when the probe reports cancellation between
// stages. The caller must not record it as a failure.
var ErrCancelled = errors.New("pipeline: task cancelled")

// Probe reports whether the task should stop. The worker wires it to a
// status check so external cancellation is observed between stages.
type Probe func(ctx context.Context) bool

// Runner executes the transcribe, validate, translate pipeline for one
// task and packs the output per language and file.
type Runner struct {
	stt       engine.STT
	mt        engine.MT
	threshold float64
	logger    zerolog.Logger
}

// NewRunner creates a runner. threshold is the word error rate above
// which a transcript is replaced by its reference text.
func NewRunner(stt engine.STT, mt engine.MT, threshold float64) *Runner {
	return &Runner{
		stt:       stt,
		mt:        mt,
		threshold: threshold,
		logger:    log.WithComponent("pipeline"),
	}
}

// Run processes every audio file of the task. The source language slot
// of each file carries the reference text (possibly empty) and the full
// transcript; every target language slot carries a translation of the
// validated text. Any engine error aborts the run.
func (r *Runner) Run(ctx context.Context, task *types.Task, cancelled Probe) (types.PackedResults, error) {
	packed := make(types.PackedResults, len(task.TargetLanguages)+1)
	packed[task.SourceLanguage] = make(map[string]types.FileResult)
	for _, lang := range task.TargetLanguages {
		packed[lang] = make(map[string]types.FileResult)
	}

	logger := r.logger.With().Str("task_id", task.TaskID).Logger()

	for _, audioPath := range task.AudioFiles {
		fileID := FileID(audioPath)
		reference := task.TextData[fileID]

		if cancelled(ctx) {
			return nil, ErrCancelled
		}
		transcript, err := r.stt.Transcribe(ctx, audioPath)
		if err != nil {
			return nil, err
		}

		text := transcript.Text
		if reference != "" {
			rate := WordErrorRate(reference, transcript.Text)
			if rate > r.threshold {
				logger.Warn().
					Str("file_id", fileID).
					Float64("wer", rate).
					Msg("Transcript rejected, translating reference text")
				text = reference
			} else {
				logger.Debug().
					Str("file_id", fileID).
					Float64("wer", rate).
					Msg("Transcript accepted")
			}
		}

		ref := reference
		source := packed[task.SourceLanguage][fileID]
		source.Text = &ref
		source.Audio = transcript
		packed[task.SourceLanguage][fileID] = source

		for _, lang := range task.TargetLanguages {
			if cancelled(ctx) {
				return nil, ErrCancelled
			}
			translation, err := r.mt.Translate(ctx, text, task.SourceLanguage, lang)
			if err != nil {
				return nil, err
			}
			tr := translation
			slot := packed[lang][fileID]
			slot.Translation = &tr
			packed[lang][fileID] = slot
		}

		logger.Info().Str("file_id", fileID).Msg("Processed audio file")
	}
	return packed, nil
}

// FileID derives the result key for an audio file: its base name
// without the extension. Reference text and packed results are keyed
// by it.
func FileID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
