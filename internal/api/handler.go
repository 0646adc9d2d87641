package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"mmark-score/internal/leaderboard"
	"mmark-score/internal/observability"
	"mmark-score/internal/scores"
	"mmark-score/internal/storage"
	"mmark-score/internal/submission"
)

// Scores is the score service as seen by the HTTP layer.
type Scores interface {
	Submit(ctx context.Context, body []byte, clientIP string) (scores.Receipt, error)
	Scoreboard(ctx context.Context) (leaderboard.Page, error)
	CountryBoard(ctx context.Context, code string) ([]leaderboard.Line, error)
	ScoreDetail(ctx context.Context, id string, nonce *string) (scores.Detail, error)
	ClaimScore(ctx context.Context, id, nonce, name string) error
	News(ctx context.Context) ([]storage.NewsItem, error)
}

const userNameCookie = "user_name"

type ScoreHandler struct {
	Svc Scores
}

func NewScoreHandler(svc Scores) *ScoreHandler {
	return &ScoreHandler{Svc: svc}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	var missing *submission.MissingItemError
	switch {
	case errors.As(err, &missing):
		observability.RequestErrors.WithLabelValues("missing_item").Inc()
		http.Error(w, "Missing item: "+missing.Item, http.StatusBadRequest)
	case errors.Is(err, submission.ErrInvalidValue):
		observability.RequestErrors.WithLabelValues("invalid_value").Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, storage.ErrAlreadySubmitted):
		observability.RequestErrors.WithLabelValues("resubmission").Inc()
		http.Error(w, "client_submit_id resubmission", http.StatusConflict)
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, scores.ErrInvalidNonce):
		observability.RequestErrors.WithLabelValues("nonce").Inc()
		http.Error(w, "Invalid nonce", http.StatusBadRequest)
	case errors.Is(err, scores.ErrNameTaken):
		http.Error(w, "name already set", http.StatusConflict)
	default:
		observability.RequestErrors.WithLabelValues("internal").Inc()
		log.Error().Err(err).Msg("request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// Upload stores a signed score submission.
func (h *ScoreHandler) Upload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	rec, err := h.Svc.Submit(r.Context(), body, clientIP(r))
	if err != nil {
		log.Debug().Err(err).Msg("upload rejected")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *ScoreHandler) Scoreboard(w http.ResponseWriter, r *http.Request) {
	p, err := h.Svc.Scoreboard(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ScoreHandler) CountryBoard(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if len(code) != 2 {
		http.Error(w, "country code must be two letters", http.StatusBadRequest)
		return
	}
	lines, err := h.Svc.CountryBoard(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lines)
}

type scoreView struct {
	scores.Detail
	Name *string `json:"name"`
}

// ScoreDetail shows one score. The name remembered in the user_name
// cookie is returned so clients can prefill it.
func (h *ScoreHandler) ScoreDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uuid")
	var nonce *string
	if q := r.URL.Query(); q.Has("nonce") {
		n := q.Get("nonce")
		nonce = &n
	}

	d, err := h.Svc.ScoreDetail(r.Context(), id, nonce)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scoreView{Detail: d, Name: cookieName(r)})
}

type claimRequest struct {
	Name  string `json:"name"`
	Nonce string `json:"nonce"`
}

// ClaimScore names a score. Accepts JSON or a form body.
func (h *ScoreHandler) ClaimScore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uuid")

	var req claimRequest
	if r.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
	} else {
		req.Name = r.FormValue("name")
		req.Nonce = r.FormValue("nonce")
	}
	if req.Name == "" {
		http.Error(w, "Missing item: name", http.StatusBadRequest)
		return
	}

	if err := h.Svc.ClaimScore(r.Context(), id, req.Nonce, req.Name); err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:    userNameCookie,
		Value:   base64.StdEncoding.EncodeToString([]byte(req.Name)),
		Path:    "/",
		Expires: time.Now().AddDate(10, 0, 0),
	})
	w.Header().Set("Location", "/v1/scores/"+id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ScoreHandler) News(w http.ResponseWriter, r *http.Request) {
	items, err := h.Svc.News(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func cookieName(r *http.Request) *string {
	c, err := r.Cookie(userNameCookie)
	if err != nil {
		return nil
	}
	b, err := base64.StdEncoding.DecodeString(c.Value)
	if err != nil {
		return nil
	}
	name := string(b)
	return &name
}

// clientIP expects middleware.RealIP to have resolved forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
