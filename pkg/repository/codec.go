package repository

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/taleweave/fable/pkg/types"
)

// Hash encoding contract for task records: scalar fields as plain strings,
// collection fields as canonical JSON, timestamps as RFC 3339 UTC, statuses
// as lowercase wire values. Unknown fields are ignored on read so records
// written by newer versions still decode.

func encodeTask(task *types.Task) (map[string]string, error) {
	targets, err := json.Marshal(task.TargetLanguages)
	if err != nil {
		return nil, fmt.Errorf("target_languages: %w", err)
	}
	audio, err := json.Marshal(task.AudioFiles)
	if err != nil {
		return nil, fmt.Errorf("audio_files: %w", err)
	}
	text, err := json.Marshal(task.TextData)
	if err != nil {
		return nil, fmt.Errorf("text_data: %w", err)
	}

	return map[string]string{
		"task_id":          task.TaskID,
		"status":           string(task.Status),
		"source_language":  task.SourceLanguage,
		"target_languages": string(targets),
		"audio_files":      string(audio),
		"text_data":        string(text),
		"created_at":       task.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":       task.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"assigned_worker":  task.AssignedWorker,
		"error_message":    task.ErrorMessage,
		"retry_count":      strconv.Itoa(task.RetryCount),
		"progress":         strconv.FormatFloat(task.Progress, 'f', -1, 64),
	}, nil
}

func decodeTask(fields map[string]string) (*types.Task, error) {
	task := &types.Task{
		TaskID:         fields["task_id"],
		Status:         types.TaskStatus(fields["status"]),
		SourceLanguage: fields["source_language"],
		AssignedWorker: fields["assigned_worker"],
		ErrorMessage:   fields["error_message"],
	}

	if task.TaskID == "" {
		return nil, fmt.Errorf("missing task_id")
	}
	if !task.Status.Valid() {
		return nil, fmt.Errorf("unknown status %q", fields["status"])
	}

	if raw := fields["target_languages"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &task.TargetLanguages); err != nil {
			return nil, fmt.Errorf("target_languages: %w", err)
		}
	}
	if raw := fields["audio_files"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &task.AudioFiles); err != nil {
			return nil, fmt.Errorf("audio_files: %w", err)
		}
	}
	if raw := fields["text_data"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &task.TextData); err != nil {
			return nil, fmt.Errorf("text_data: %w", err)
		}
	}

	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	task.CreatedAt = createdAt

	updatedAt, err := time.Parse(time.RFC3339Nano, fields["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}
	task.UpdatedAt = updatedAt

	// Optional numeric fields default to zero when absent.
	if raw := fields["retry_count"]; raw != "" {
		count, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("retry_count: %w", err)
		}
		task.RetryCount = count
	}
	if raw := fields["progress"]; raw != "" {
		progress, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("progress: %w", err)
		}
		task.Progress = progress
	}

	return task, nil
}
