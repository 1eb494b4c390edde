package types

import (
	"time"
)

// Task represents a single translation job moving through the queue
type Task struct {
	TaskID          string
	Status          TaskStatus
	SourceLanguage  string
	TargetLanguages []string
	AudioFiles      []string          // Paths under the upload directory
	TextData        map[string]string // Reference text keyed by file id, may be empty
	CreatedAt       time.Time
	UpdatedAt       time.Time
	AssignedWorker  string
	ErrorMessage    string
	RetryCount      int
	Progress        float64 // 0.0 to 1.0, advisory
}

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
	TaskStatusRetry      TaskStatus = "retry"
)

// Valid reports whether s is one of the known statuses
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusCancelled, TaskStatusRetry:
		return true
	}
	return false
}

// Terminal reports whether no further processing happens in this state
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// Progress milestones written by the dispatcher and worker
const (
	ProgressClaimed   = 0.1
	ProgressStarted   = 0.2
	ProgressPipelined = 0.8
	ProgressDone      = 1.0
)

// ResultSource selects one slice of a packed result entry
type ResultSource string

const (
	SourceText        ResultSource = "TEXT"
	SourceAudio       ResultSource = "AUDIO"
	SourceTranslation ResultSource = "TRANSLATION"
)

// Valid reports whether s is a known result source
func (s ResultSource) Valid() bool {
	switch s {
	case SourceText, SourceAudio, SourceTranslation:
		return true
	}
	return false
}

// Transcript is the structured output of a speech-to-text engine
type Transcript struct {
	Text     string              `json:"text"`
	Segments []TranscriptSegment `json:"segments"`
}

// TranscriptSegment is one timed span of a transcript
type TranscriptSegment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// FileResult holds the per-source outputs for one audio file in one language.
// The source language carries TEXT and AUDIO; target languages carry TRANSLATION.
type FileResult struct {
	Text        *string      `json:"TEXT,omitempty"`
	Audio       *Transcript  `json:"AUDIO,omitempty"`
	Translation *string      `json:"TRANSLATION,omitempty"`
}

// PackedResults is the full result structure for a task:
// language code -> file id -> per-source outputs
type PackedResults map[string]map[string]FileResult

// WorkerState represents the advertised state of a worker process
type WorkerState string

const (
	WorkerStateActive   WorkerState = "active"
	WorkerStateStopping WorkerState = "stopping"
)

// WorkerInfo is the heartbeat record a worker maintains while alive
type WorkerInfo struct {
	WorkerID       string      `json:"worker_id"`
	Status         WorkerState `json:"status"`
	LastHeartbeat  time.Time   `json:"last_heartbeat"`
	ActiveTasks    int         `json:"active_tasks"`
	CompletedTasks int         `json:"completed_tasks"`
	FailedTasks    int         `json:"failed_tasks"`
}

// StoryMeta maps a user-facing story name to its task and shape
type StoryMeta struct {
	TaskID       string   `json:"task_id"`
	Title        string   `json:"title"`
	Languages    []string `json:"languages"`
	SegmentCount int      `json:"segment_count"`
}

// SystemSample is a point-in-time view of host resource usage
type SystemSample struct {
	CPUPercent        float64 `json:"cpu_percent"`
	MemoryPercent     float64 `json:"memory_percent"`
	MemoryAvailableGB float64 `json:"memory_available_gb"`
}

// languageNames maps supported language codes to display names
var languageNames = map[string]string{
	"en":    "English",
	"zh":    "Chinese (Simplified)",
	"zh-CN": "Chinese (Simplified)",
	"zh-TW": "Chinese (Traditional)",
	"ja":    "Japanese",
	"ko":    "Korean",
	"fr":    "French",
	"de":    "German",
	"es":    "Spanish",
}

// LanguageName returns the display name for a language code, or the
// code itself when unknown
func LanguageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}
