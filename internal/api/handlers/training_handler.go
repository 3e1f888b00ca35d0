package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	middleware "github.com/markdave123-py/botwise/internal/api/middlewares"
	"github.com/markdave123-py/botwise/internal/core"
	"github.com/markdave123-py/botwise/internal/core/ingestion_engine"
	"github.com/markdave123-py/botwise/internal/models"
	"github.com/markdave123-py/botwise/internal/services"
)

const maxTrainBody = 64 << 20

type TrainingHandler struct {
	dbclient core.DbClient
	training *services.TrainingService
	log      *zap.Logger
}

func NewTrainingHandler(dbclient core.DbClient, training *services.TrainingService, log *zap.Logger) *TrainingHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &TrainingHandler{dbclient: dbclient, training: training, log: log}
}

type textInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type websiteInput struct {
	URL      string `json:"url"`
	MaxDepth *int   `json:"maxDepth,omitempty"`
}

type trainRequest struct {
	Files    []services.FileInput `json:"files"`
	Text     *textInput           `json:"text,omitempty"`
	Websites []websiteInput       `json:"websites"`
}

// ownedBot loads the bot named in the path and checks it belongs to the caller.
func (h *TrainingHandler) ownedBot(w http.ResponseWriter, r *http.Request) (*models.Bot, bool) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	bot, err := h.dbclient.GetBotByID(r.Context(), chi.URLParam(r, "botID"))
	if err != nil {
		writeError(w, h.log, err)
		return nil, false
	}
	if bot.UserID != userID {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "bot does not belong to caller"})
		return nil, false
	}
	return bot, true
}

// Train accepts files, pasted text and websites and queues them for ingestion.
func (h *TrainingHandler) Train(w http.ResponseWriter, r *http.Request) {
	bot, ok := h.ownedBot(w, r)
	if !ok {
		return
	}
	var req trainRequest
	if err := decodeBody(w, r, maxTrainBody, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	if len(req.Files) == 0 && req.Text == nil && len(req.Websites) == 0 {
		writeError(w, h.log, core.NewError(core.KindInvalidInput, "nothing to train on", nil))
		return
	}

	ctx := r.Context()
	res, err := h.training.TrainFiles(ctx, bot, req.Files)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if req.Text != nil {
		doc, err := h.training.TrainText(ctx, bot, req.Text.Title, req.Text.Content)
		switch {
		case err == nil:
			res.Documents = append(res.Documents, *doc)
		case rejectable(err):
			res.Rejected = append(res.Rejected, services.Rejection{Name: req.Text.Title, Error: err.Error()})
		default:
			writeError(w, h.log, err)
			return
		}
	}
	for _, site := range req.Websites {
		crawl, err := h.training.TrainWebsite(ctx, bot, site.URL, site.MaxDepth)
		switch {
		case err == nil:
			res.Websites = append(res.Websites, *crawl)
		case rejectable(err):
			res.Rejected = append(res.Rejected, services.Rejection{Name: site.URL, Error: err.Error()})
		default:
			writeError(w, h.log, err)
			return
		}
	}

	h.log.Info("training accepted",
		zap.String("bot_id", bot.ID),
		zap.Int("documents", len(res.Documents)),
		zap.Int("websites", len(res.Websites)),
		zap.Int("rejected", len(res.Rejected)))
	writeJSON(w, http.StatusAccepted, res)
}

func rejectable(err error) bool {
	return errors.Is(err, core.ErrInvalidInput) || errors.Is(err, core.ErrUnsupportedFormat) || errors.Is(err, ingestion_engine.ErrQueueFull)
}

func (h *TrainingHandler) Status(w http.ResponseWriter, r *http.Request) {
	bot, ok := h.ownedBot(w, r)
	if !ok {
		return
	}
	status, err := h.training.TrainingStatus(r.Context(), bot)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *TrainingHandler) Clear(w http.ResponseWriter, r *http.Request) {
	bot, ok := h.ownedBot(w, r)
	if !ok {
		return
	}
	if err := h.training.ClearTrainingData(r.Context(), bot); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TrainingHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	bot, ok := h.ownedBot(w, r)
	if !ok {
		return
	}
	docs, err := h.training.ListDocuments(r.Context(), bot)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *TrainingHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	bot, ok := h.ownedBot(w, r)
	if !ok {
		return
	}
	if err := h.training.DeleteDocument(r.Context(), bot, chi.URLParam(r, "docID")); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TrainingHandler) ListWebsites(w http.ResponseWriter, r *http.Request) {
	bot, ok := h.ownedBot(w, r)
	if !ok {
		return
	}
	sites, err := h.training.ListWebsites(r.Context(), bot)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, sites)
}

func (h *TrainingHandler) DeleteWebsite(w http.ResponseWriter, r *http.Request) {
	bot, ok := h.ownedBot(w, r)
	if !ok {
		return
	}
	if err := h.training.DeleteWebsite(r.Context(), bot, chi.URLParam(r, "crawlID")); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
