package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taleweave/fable/pkg/types"
)

type fakeSTT struct {
	transcripts map[string]*types.Transcript
	err         error
	calls       []string
}

func (f *fakeSTT) Transcribe(ctx context.Context, path string) (*types.Transcript, error) {
	f.calls = append(f.calls, path)
	if f.err != nil {
		return nil, f.err
	}
	if tr, ok := f.transcripts[path]; ok {
		return tr, nil
	}
	return &types.Transcript{}, nil
}

type translation struct {
	text   string
	target string
}

type fakeMT struct {
	err   error
	calls []translation
}

func (f *fakeMT) Translate(ctx context.Context, text, source, target string) (string, error) {
	f.calls = append(f.calls, translation{text: text, target: target})
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("%s:%s", target, text), nil
}

func never(context.Context) bool { return false }

func strptr(s string) *string { return &s }

func sampleTask() *types.Task {
	return &types.Task{
		TaskID:          "task-1",
		Status:          types.TaskStatusProcessing,
		SourceLanguage:  "en",
		TargetLanguages: []string{"ja", "zh"},
		AudioFiles:      []string{"uploads/segment_001.mp3", "uploads/segment_002.mp3"},
		TextData:        map[string]string{"segment_001": "once upon a time"},
	}
}

func TestRunPacksResults(t *testing.T) {
	stt := &fakeSTT{transcripts: map[string]*types.Transcript{
		"uploads/segment_001.mp3": {Text: "once upon a time"},
		"uploads/segment_002.mp3": {Text: "the end"},
	}}
	mt := &fakeMT{}
	r := NewRunner(stt, mt, 0.3)

	packed, err := r.Run(context.Background(), sampleTask(), never)
	require.NoError(t, err)

	want := types.PackedResults{
		"en": {
			"segment_001": {Text: strptr("once upon a time"), Audio: &types.Transcript{Text: "once upon a time"}},
			"segment_002": {Text: strptr(""), Audio: &types.Transcript{Text: "the end"}},
		},
		"ja": {
			"segment_001": {Translation: strptr("ja:once upon a time")},
			"segment_002": {Translation: strptr("ja:the end")},
		},
		"zh": {
			"segment_001": {Translation: strptr("zh:once upon a time")},
			"segment_002": {Translation: strptr("zh:the end")},
		},
	}
	assert.Equal(t, want, packed)
	assert.Equal(t, []string{"uploads/segment_001.mp3", "uploads/segment_002.mp3"}, stt.calls)
	assert.Len(t, mt.calls, 4)
}

func TestRunSubstitutesReferenceOnHighErrorRate(t *testing.T) {
	task := sampleTask()
	task.AudioFiles = task.AudioFiles[:1]

	stt := &fakeSTT{transcripts: map[string]*types.Transcript{
		"uploads/segment_001.mp3": {Text: "entirely unrelated words here"},
	}}
	mt := &fakeMT{}
	r := NewRunner(stt, mt, 0.3)

	packed, err := r.Run(context.Background(), task, never)
	require.NoError(t, err)

	// The reference is what gets translated.
	require.Len(t, mt.calls, 2)
	assert.Equal(t, "once upon a time", mt.calls[0].text)

	// The raw transcript is still packed for inspection.
	assert.Equal(t, "entirely unrelated words here", packed["en"]["segment_001"].Audio.Text)
	assert.Equal(t, "once upon a time", *packed["en"]["segment_001"].Text)
}

func TestRunTranscribeError(t *testing.T) {
	stt := &fakeSTT{err: errors.New("model crashed")}
	r := NewRunner(stt, &fakeMT{}, 0.3)

	_, err := r.Run(context.Background(), sampleTask(), never)
	assert.ErrorContains(t, err, "model crashed")
}

func TestRunTranslateError(t *testing.T) {
	stt := &fakeSTT{transcripts: map[string]*types.Transcript{}}
	mt := &fakeMT{err: errors.New("quota exceeded")}
	r := NewRunner(stt, mt, 0.3)

	_, err := r.Run(context.Background(), sampleTask(), never)
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestRunCancelledImmediately(t *testing.T) {
	stt := &fakeSTT{}
	r := NewRunner(stt, &fakeMT{}, 0.3)

	always := func(context.Context) bool { return true }
	_, err := r.Run(context.Background(), sampleTask(), always)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, stt.calls, "no engine call after cancellation")
}

func TestRunCancelledBetweenStages(t *testing.T) {
	stt := &fakeSTT{}
	mt := &fakeMT{}
	r := NewRunner(stt, mt, 0.3)

	probes := 0
	second := func(context.Context) bool {
		probes++
		return probes > 1
	}
	_, err := r.Run(context.Background(), sampleTask(), second)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Len(t, stt.calls, 1, "first transcribe ran before the cancel landed")
	assert.Empty(t, mt.calls)
}

func TestRunSourceAmongTargets(t *testing.T) {
	task := sampleTask()
	task.TargetLanguages = []string{"en"}
	task.AudioFiles = task.AudioFiles[:1]

	stt := &fakeSTT{transcripts: map[string]*types.Transcript{
		"uploads/segment_001.mp3": {Text: "once upon a time"},
	}}
	r := NewRunner(stt, &fakeMT{}, 0.3)

	packed, err := r.Run(context.Background(), task, never)
	require.NoError(t, err)

	slot := packed["en"]["segment_001"]
	assert.NotNil(t, slot.Text)
	assert.NotNil(t, slot.Audio)
	assert.NotNil(t, slot.Translation)
}

func TestRunNoAudioFiles(t *testing.T) {
	task := sampleTask()
	task.AudioFiles = nil

	r := NewRunner(&fakeSTT{}, &fakeMT{}, 0.3)
	packed, err := r.Run(context.Background(), task, never)
	require.NoError(t, err)

	assert.Len(t, packed, 3)
	assert.Empty(t, packed["en"])
}

func TestFileID(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"uploads/segment_001.mp3", "segment_001"},
		{"segment_001.mp3", "segment_001"},
		{"/abs/path/chapter v2.mp3", "chapter v2"},
		{"noext", "noext"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FileID(tt.path), tt.path)
	}
}
