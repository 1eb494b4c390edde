package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taleweave/fable/pkg/repository"
	"github.com/taleweave/fable/pkg/results"
	"github.com/taleweave/fable/pkg/types"
)

// handleStoryText resolves a single piece of content by story name,
// language, file id and source kind. It walks story -> task -> packed
// results, so it only serves stories whose task has completed.
func (s *Server) handleStoryText(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	q := r.URL.Query()
	lang := q.Get("lang")
	textID := q.Get("text_id")
	source := types.ResultSource(q.Get("source"))

	if lang == "" || textID == "" || q.Get("source") == "" {
		s.respondError(w, http.StatusBadRequest, "lang, text_id and source query parameters are required")
		return
	}
	if !source.Valid() {
		s.respondError(w, http.StatusBadRequest, "Invalid source: must be TEXT, AUDIO or TRANSLATION")
		return
	}

	story, err := s.deps.Repo.GetStory(r.Context(), name)
	if errors.Is(err, repository.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Story %q not found", name))
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("story", name).Msg("Failed to load story")
		s.respondError(w, http.StatusInternalServerError, "Failed to load story")
		return
	}
	if story.TaskID == "" {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Story %q has no task associated", name))
		return
	}

	packed, err := s.deps.Results.Get(r.Context(), story.TaskID)
	if errors.Is(err, results.ErrNoResults) {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Results not found for task %s", story.TaskID))
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("task_id", story.TaskID).Msg("Failed to load results")
		s.respondError(w, http.StatusInternalServerError, "Failed to load results")
		return
	}

	content, ok := results.Lookup(packed, lang, textID, source)
	if !ok {
		s.respondError(w, http.StatusNotFound,
			fmt.Sprintf("Content not found for lang=%q, text_id=%q, source=%q", lang, textID, source))
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"content": content})
}
