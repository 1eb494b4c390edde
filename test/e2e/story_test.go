package e2e

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taleweave/fable/pkg/client"
	"github.com/taleweave/fable/pkg/types"
	"github.com/taleweave/fable/test/framework"
)

// TestStoryContentAfterCompletion runs a named story through the full
// pipeline and reads its content back piece by piece.
func TestStoryContentAfterCompletion(t *testing.T) {
	stack := framework.NewStack(t, framework.Options{Workers: 1})

	ack, err := stack.Client.SubmitTask(client.SubmitOptions{
		SourceLanguage:  "en",
		TargetLanguages: []string{"ja", "zh"},
		StoryName:       "gingerbread",
		Files: []client.FileUpload{
			{Name: "chapter_001.mp3", Content: strings.NewReader("audio-bytes")},
		},
	})
	require.NoError(t, err)
	stack.WaitForStatus(t, ack.TaskID, types.TaskStatusCompleted)

	audio, err := stack.Client.StoryText("gingerbread", "en", "chapter_001", "AUDIO")
	require.NoError(t, err)
	assert.Equal(t, "transcript of chapter_001", audio)

	ja, err := stack.Client.StoryText("gingerbread", "ja", "chapter_001", "TRANSLATION")
	require.NoError(t, err)
	assert.Equal(t, "[ja] transcript of chapter_001", ja)

	zh, err := stack.Client.StoryText("gingerbread", "zh", "chapter_001", "TRANSLATION")
	require.NoError(t, err)
	assert.Equal(t, "[zh] transcript of chapter_001", zh)

	// No reference text was uploaded, so the source language's TEXT slot
	// holds the empty placeholder rather than a miss.
	text, err := stack.Client.StoryText("gingerbread", "en", "chapter_001", "TEXT")
	require.NoError(t, err)
	assert.Empty(t, text)

	// A language outside the task is a miss.
	_, err = stack.Client.StoryText("gingerbread", "fr", "chapter_001", "TRANSLATION")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)
	assert.Contains(t, apiErr.Detail, "Content not found")
}

// TestStoryContentSurvivesRecordExpiry expires a finished task out of
// the store and garbage-collects it. The task record and its fast-tier
// blob go away, but story reads keep working because the durable
// export file remains.
func TestStoryContentSurvivesRecordExpiry(t *testing.T) {
	stack := framework.NewStack(t, framework.Options{Workers: 1})
	ctx := context.Background()

	ack, err := stack.Client.SubmitTask(client.SubmitOptions{
		SourceLanguage:  "en",
		TargetLanguages: []string{"ja"},
		StoryName:       "archive",
		Files: []client.FileUpload{
			{Name: "a.mp3", Content: strings.NewReader("audio-bytes")},
		},
	})
	require.NoError(t, err)
	stack.WaitForStatus(t, ack.TaskID, types.TaskStatusCompleted)
	stack.WaitForAcknowledged(t)

	// Age the record past the retention window and run a cycle.
	old := time.Now().UTC().Add(-48 * time.Hour).Format(time.RFC3339Nano)
	require.NoError(t, stack.Store.HSet(ctx, "task:"+ack.TaskID, map[string]string{"updated_at": old}))
	stack.Janitor.Collect(ctx)

	_, err = stack.Client.Task(ack.TaskID)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)

	content, err := stack.Client.StoryText("archive", "ja", "a", "TRANSLATION")
	require.NoError(t, err)
	assert.Equal(t, "[ja] transcript of a", content)
}

// TestStoryBeforeResults reads a story whose task is still queued: the
// association exists but no results do yet.
func TestStoryBeforeResults(t *testing.T) {
	stack := framework.NewStack(t, framework.Options{})

	_, err := stack.Client.SubmitTask(client.SubmitOptions{
		SourceLanguage:  "en",
		TargetLanguages: []string{"ja"},
		StoryName:       "pending-story",
		Files: []client.FileUpload{
			{Name: "a.mp3", Content: strings.NewReader("audio-bytes")},
		},
	})
	require.NoError(t, err)

	_, err = stack.Client.StoryText("pending-story", "en", "a", "AUDIO")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)
	assert.Contains(t, apiErr.Detail, "Results not found")
}
