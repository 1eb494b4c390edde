package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taleweave/fable/pkg/types"
)

func TestStoryTextEndpoint(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	task := createSampleTask(t, s)

	require.NoError(t, s.repo.AssociateStory(ctx, "midnight-garden", types.StoryMeta{
		TaskID:       task.TaskID,
		Title:        "midnight-garden",
		Languages:    []string{"ja"},
		SegmentCount: 1,
	}))
	require.NoError(t, s.res.Store(ctx, task.TaskID, types.PackedResults{
		"ja": {"segment_001": types.FileResult{
			Text:        strPtr("Once upon a time"),
			Translation: strPtr("昔々あるところに"),
		}},
	}))

	code, data := s.get(t, "/api/v1/story/midnight-garden/text?lang=ja&text_id=segment_001&source=TRANSLATION")
	require.Equal(t, http.StatusOK, code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "昔々あるところに", body["content"])

	code, data = s.get(t, "/api/v1/story/midnight-garden/text?lang=ja&text_id=segment_001&source=TEXT")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "Once upon a time", body["content"])
}

func TestStoryTextValidation(t *testing.T) {
	s := newTestServer(t)

	code, data := s.get(t, "/api/v1/story/any/text?lang=ja&source=TEXT")
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "lang, text_id and source query parameters are required", errDetail(t, data))

	code, data = s.get(t, "/api/v1/story/any/text?lang=ja&text_id=x&source=VIDEO")
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid source: must be TEXT, AUDIO or TRANSLATION", errDetail(t, data))
}

func TestStoryTextMisses(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	code, data := s.get(t, "/api/v1/story/ghost/text?lang=ja&text_id=x&source=TEXT")
	require.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, `Story "ghost" not found`, errDetail(t, data))

	task := createSampleTask(t, s)
	require.NoError(t, s.repo.AssociateStory(ctx, "silent", types.StoryMeta{
		TaskID: task.TaskID,
		Title:  "silent",
	}))

	// Story exists but results were never stored.
	code, data = s.get(t, "/api/v1/story/silent/text?lang=ja&text_id=x&source=TEXT")
	require.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, errDetail(t, data), "Results not found")

	require.NoError(t, s.res.Store(ctx, task.TaskID, types.PackedResults{
		"ja": {"segment_001": types.FileResult{Text: strPtr("words")}},
	}))

	code, data = s.get(t, "/api/v1/story/silent/text?lang=zh&text_id=segment_001&source=TEXT")
	require.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, errDetail(t, data), "Content not found")
}
