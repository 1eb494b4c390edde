package api

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taleweave/fable/pkg/dispatch"
	"github.com/taleweave/fable/pkg/repository"
	"github.com/taleweave/fable/pkg/results"
	"github.com/taleweave/fable/pkg/types"
	"github.com/taleweave/fable/pkg/uploads"
)

const (
	defaultSourceLanguage = "en"
	defaultListLimit      = 100

	// multipartMemory bounds the in-memory portion of a parsed form;
	// larger file parts spill to disk and are cleaned up by net/http.
	multipartMemory = 32 << 20
)

func defaultTargetLanguages() []string {
	return []string{"zh", "ja"}
}

// taskResponse acknowledges a lifecycle action on a task.
type taskResponse struct {
	TaskID  string           `json:"task_id"`
	Status  types.TaskStatus `json:"status"`
	Message string           `json:"message"`
}

// taskStatusResponse is the public view of a task record.
type taskStatusResponse struct {
	TaskID         string           `json:"task_id"`
	Status         types.TaskStatus `json:"status"`
	Progress       float64          `json:"progress"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	AssignedWorker string           `json:"assigned_worker,omitempty"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	RetryCount     int              `json:"retry_count"`
}

func statusView(task *types.Task) taskStatusResponse {
	return taskStatusResponse{
		TaskID:         task.TaskID,
		Status:         task.Status,
		Progress:       task.Progress,
		CreatedAt:      task.CreatedAt,
		UpdatedAt:      task.UpdatedAt,
		AssignedWorker: task.AssignedWorker,
		ErrorMessage:   task.ErrorMessage,
		RetryCount:     task.RetryCount,
	}
}

// createForm carries the non-file fields of a task submission.
type createForm struct {
	SourceLanguage  string   `validate:"required"`
	TargetLanguages []string `validate:"required,min=1,dive,required"`
	StoryName       string   `validate:"omitempty,max=128"`
}

// savedUploads is what the file parts of a submission amount to once
// persisted: audio paths under the upload dir plus any reference text.
type savedUploads struct {
	audio []string
	text  map[string]string
}

// handleCreateTask accepts a multipart submission carrying audio files,
// optional ZIP bundles and optional reference-text JSON, persists the
// payload and enqueues a translation task. It backs both the /tasks and
// /upload endpoints; the two differ only in the route the client picks.
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	form := createForm{
		SourceLanguage:  strings.TrimSpace(r.FormValue("source_language")),
		TargetLanguages: splitLanguages(r.MultipartForm.Value["target_languages"]),
		StoryName:       strings.TrimSpace(r.FormValue("story_name")),
	}
	if form.SourceLanguage == "" {
		form.SourceLanguage = defaultSourceLanguage
	}
	if len(form.TargetLanguages) == 0 {
		form.TargetLanguages = defaultTargetLanguages()
	}
	if err := s.validate.Struct(form); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request parameters")
		return
	}

	saved, err := s.saveUploads(r.MultipartForm)
	if err != nil {
		s.uploadError(w, err)
		return
	}
	if len(saved.audio) == 0 {
		s.respondError(w, http.StatusBadRequest, "No MP3 audio files found in upload")
		return
	}

	task, err := s.deps.Dispatcher.CreateTask(r.Context(), dispatch.CreateRequest{
		SourceLanguage:  form.SourceLanguage,
		TargetLanguages: form.TargetLanguages,
		AudioFiles:      saved.audio,
		TextData:        saved.text,
	})
	if err != nil {
		if errors.Is(err, dispatch.ErrUnsupportedLanguage) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("Failed to create task")
		s.respondError(w, http.StatusInternalServerError, "Failed to create task")
		return
	}

	if form.StoryName != "" {
		meta := types.StoryMeta{
			TaskID:       task.TaskID,
			Title:        form.StoryName,
			Languages:    append([]string{form.SourceLanguage}, form.TargetLanguages...),
			SegmentCount: len(saved.audio),
		}
		if err := s.deps.Repo.AssociateStory(r.Context(), form.StoryName, meta); err != nil {
			s.logger.Error().Err(err).Str("story", form.StoryName).Msg("Failed to associate story")
			s.respondError(w, http.StatusInternalServerError, "Task created but story association failed")
			return
		}
	}

	s.respond(w, http.StatusOK, taskResponse{
		TaskID:  task.TaskID,
		Status:  task.Status,
		Message: "Task created successfully",
	})
}

// saveUploads walks every file part of the form and persists it by
// extension: ZIP bundles are expanded, JSON parts are parsed as
// reference text, audio parts are stored as-is. Anything else is
// skipped silently, matching how clients bundle whole directories.
func (s *Server) saveUploads(form *multipart.Form) (savedUploads, error) {
	var saved savedUploads
	for _, headers := range form.File {
		for _, fh := range headers {
			if fh.Size > s.cfg.MaxFileSize {
				return saved, fmt.Errorf("%w: %s", uploads.ErrFileTooLarge, fh.Filename)
			}
			part, err := fh.Open()
			if err != nil {
				return saved, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
			}
			err = s.saveOne(&saved, fh.Filename, part)
			part.Close()
			if err != nil {
				return saved, err
			}
		}
	}
	return saved, nil
}

func (s *Server) saveOne(saved *savedUploads, name string, part multipart.File) error {
	switch ext := strings.ToLower(filepath.Ext(name)); {
	case ext == ".zip":
		audio, text, err := s.deps.Uploads.ExpandArchive(part)
		if err != nil {
			return err
		}
		saved.audio = append(saved.audio, audio...)
		mergeText(&saved.text, text)
	case ext == ".json":
		text, err := s.deps.Uploads.ParseReference(part)
		if err != nil {
			return err
		}
		mergeText(&saved.text, text)
	case s.cfg.AudioFormatAllowed(ext):
		path, err := s.deps.Uploads.SaveAudio(name, part)
		if err != nil {
			return err
		}
		saved.audio = append(saved.audio, path)
	}
	return nil
}

func mergeText(dst *map[string]string, src map[string]string) {
	if len(src) == 0 {
		return
	}
	if *dst == nil {
		*dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		(*dst)[k] = v
	}
}

// uploadError maps persistence failures to status codes: anything the
// caller sent broken is a 400, everything else is a 500.
func (s *Server) uploadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, uploads.ErrFileTooLarge):
		s.respondError(w, http.StatusBadRequest, "File exceeds maximum size limit")
	case errors.Is(err, uploads.ErrUnsupportedFormat):
		s.respondError(w, http.StatusBadRequest, "Unsupported audio format")
	case errors.Is(err, uploads.ErrBadArchive):
		s.respondError(w, http.StatusBadRequest, "Invalid ZIP archive")
	case errors.Is(err, uploads.ErrBadReference):
		s.respondError(w, http.StatusBadRequest, "Invalid reference text file")
	default:
		s.logger.Error().Err(err).Msg("Failed to store upload")
		s.respondError(w, http.StatusInternalServerError, "Failed to store upload")
	}
}

func splitLanguages(values []string) []string {
	var langs []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				langs = append(langs, part)
			}
		}
	}
	return langs
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.deps.Repo.Get(r.Context(), taskID)
	if errors.Is(err, repository.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "Task not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("task_id", taskID).Msg("Failed to load task")
		s.respondError(w, http.StatusInternalServerError, "Failed to load task")
		return
	}
	s.respond(w, http.StatusOK, statusView(task))
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.deps.Repo.Get(r.Context(), taskID)
	if errors.Is(err, repository.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "Task not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("task_id", taskID).Msg("Failed to load task")
		s.respondError(w, http.StatusInternalServerError, "Failed to load task")
		return
	}
	if task.Status != types.TaskStatusCompleted {
		s.respondError(w, http.StatusBadRequest,
			fmt.Sprintf("Task not completed. Current status: %s", task.Status))
		return
	}

	packed, err := s.deps.Results.Get(r.Context(), taskID)
	if errors.Is(err, results.ErrNoResults) {
		s.respondError(w, http.StatusNotFound, "Results not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("task_id", taskID).Msg("Failed to load results")
		s.respondError(w, http.StatusInternalServerError, "Failed to load results")
		return
	}
	s.respond(w, http.StatusOK, packed)
}

// handleCancelTask requests cooperative cancellation. Terminal tasks
// cannot be cancelled; that is a conflict, not a missing resource.
func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	err := s.deps.Dispatcher.Cancel(r.Context(), taskID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "Task not found")
	case errors.Is(err, repository.ErrInvalidTransition):
		s.respondError(w, http.StatusConflict, "Task cannot be cancelled in its current state")
	case err != nil:
		s.logger.Error().Err(err).Str("task_id", taskID).Msg("Failed to cancel task")
		s.respondError(w, http.StatusInternalServerError, "Failed to cancel task")
	default:
		s.respond(w, http.StatusOK, taskResponse{
			TaskID:  taskID,
			Status:  types.TaskStatusCancelled,
			Message: "Task cancelled successfully",
		})
	}
}

func (s *Server) handleRetryTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.deps.Dispatcher.Retry(r.Context(), taskID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "Task not found")
	case errors.Is(err, repository.ErrNotFailed):
		s.respondError(w, http.StatusBadRequest, "Only failed tasks can be retried")
	case errors.Is(err, repository.ErrRetryLimit):
		s.respondError(w, http.StatusBadRequest, "Retry limit reached")
	case err != nil:
		s.logger.Error().Err(err).Str("task_id", taskID).Msg("Failed to retry task")
		s.respondError(w, http.StatusInternalServerError, "Failed to retry task")
	default:
		s.respond(w, http.StatusOK, taskResponse{
			TaskID:  task.TaskID,
			Status:  task.Status,
			Message: "Task retried successfully",
		})
	}
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	status := types.TaskStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid status filter: %s", status))
		return
	}
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	tasks, err := s.deps.Repo.List(r.Context(), status, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list tasks")
		s.respondError(w, http.StatusInternalServerError, "Failed to list tasks")
		return
	}
	views := make([]taskStatusResponse, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, statusView(task))
	}
	s.respond(w, http.StatusOK, views)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Repo.Statistics(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to compute statistics")
		s.respondError(w, http.StatusInternalServerError, "Failed to compute statistics")
		return
	}
	s.respond(w, http.StatusOK, stats)
}
