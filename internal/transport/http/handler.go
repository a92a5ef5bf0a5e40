package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"lms-quiz-engine/internal/app"
	"lms-quiz-engine/internal/domain"
)

// Handler exposes the engine over JSON endpoints. Transport stays thin: it
// decodes, calls a service with explicit userId parameters, and maps sentinel
// errors to status codes.
type Handler struct {
	quizzes  *app.QuizService
	attempts *app.AttemptService
}

func NewHandler(quizzes *app.QuizService, attempts *app.AttemptService) *Handler {
	return &Handler{quizzes: quizzes, attempts: attempts}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /quizzes", h.createQuiz)
	mux.HandleFunc("GET /quizzes/{id}", h.getQuiz)
	mux.HandleFunc("PUT /quizzes/{id}", h.updateQuiz)
	mux.HandleFunc("DELETE /quizzes/{id}", h.deleteQuiz)
	mux.HandleFunc("GET /quizzes/{id}/student", h.studentView)
	mux.HandleFunc("POST /quizzes/{id}/attempts", h.startAttempt)
	mux.HandleFunc("GET /quizzes/{id}/attempts", h.history)
	mux.HandleFunc("POST /attempts/{id}/submit", h.submitAttempt)
	mux.HandleFunc("GET /attempts/{id}/results", h.results)
	mux.HandleFunc("POST /attempts/{id}/questions/{questionId}/grade", h.gradeEssay)
}

func (h *Handler) createQuiz(w http.ResponseWriter, r *http.Request) {
	var input app.QuizInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	quiz, err := h.quizzes.CreateQuiz(r.Context(), input)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (h *Handler) getQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.quizzes.GetQuiz(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) updateQuiz(w http.ResponseWriter, r *http.Request) {
	var input app.QuizInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	quiz, err := h.quizzes.UpdateQuiz(r.Context(), r.PathValue("id"), input)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) deleteQuiz(w http.ResponseWriter, r *http.Request) {
	if err := h.quizzes.DeleteQuiz(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) studentView(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing userId")
		return
	}
	view, err := h.quizzes.GetQuizForStudent(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) startAttempt(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing userId")
		return
	}
	started, err := h.attempts.Start(r.Context(), r.PathValue("id"), body.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if started.Resumed {
		status = http.StatusOK
	}
	writeJSON(w, status, started)
}

func (h *Handler) submitAttempt(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID    string                  `json:"userId"`
		Responses []app.SubmittedResponse `json:"responses"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing userId")
		return
	}
	attempt, err := h.attempts.Submit(r.Context(), r.PathValue("id"), body.UserID, body.Responses)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

func (h *Handler) results(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing userId")
		return
	}
	results, err := h.attempts.Results(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing userId")
		return
	}
	attempts, err := h.attempts.History(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *Handler) gradeEssay(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID   string  `json:"userId"`
		Points   float64 `json:"points"`
		GradedBy string  `json:"gradedBy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" || body.GradedBy == "" {
		writeError(w, http.StatusBadRequest, "missing userId or gradedBy")
		return
	}
	attempt, err := h.attempts.GradeEssay(r.Context(), r.PathValue("id"), body.UserID, r.PathValue("questionId"), body.Points, body.GradedBy)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrAttemptNotFound),
		errors.Is(err, domain.ErrResponseNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrQuizNotPublished),
		errors.Is(err, domain.ErrMaxAttemptsReached),
		errors.Is(err, domain.ErrResultsNotAvailable):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrAttemptNotInProgress),
		errors.Is(err, domain.ErrTimeLimitExceeded),
		errors.Is(err, domain.ErrUnknownQuestion),
		errors.Is(err, domain.ErrBadResponseShape),
		errors.Is(err, domain.ErrQuizLocked),
		errors.Is(err, domain.ErrNotManuallyGradable):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidQuiz):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
