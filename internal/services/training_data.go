package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/botwise/internal/core"
	objectclient "github.com/markdave123-py/botwise/internal/core/object-client"
	"github.com/markdave123-py/botwise/internal/models"
)

type DocumentView struct {
	models.SourceDocument
	Progress int `json:"progress"`
}

type WebsiteView struct {
	models.WebsiteCrawl
	Progress int `json:"progress"`
}

type TrainingStatus struct {
	BotID     string          `json:"botId"`
	Documents []DocumentView  `json:"documents"`
	Websites  []WebsiteView   `json:"websites"`
	Vectors   core.IndexStats `json:"vectors"`
	Stats     models.BotStats `json:"stats"`
}

func (s *TrainingService) ListDocuments(ctx context.Context, bot *models.Bot) ([]DocumentView, error) {
	docs, err := s.db.ListSourceDocumentsByBot(ctx, bot.ID)
	if err != nil {
		return nil, err
	}
	out := make([]DocumentView, len(docs))
	for i := range docs {
		out[i] = DocumentView{SourceDocument: docs[i], Progress: docs[i].Progress()}
	}
	return out, nil
}

func (s *TrainingService) ListWebsites(ctx context.Context, bot *models.Bot) ([]WebsiteView, error) {
	crawls, err := s.db.ListWebsiteCrawlsByBot(ctx, bot.ID)
	if err != nil {
		return nil, err
	}
	out := make([]WebsiteView, len(crawls))
	for i := range crawls {
		out[i] = WebsiteView{WebsiteCrawl: crawls[i], Progress: crawls[i].Progress()}
	}
	return out, nil
}

// TrainingStatus reports every training record of the bot and the size of its index.
func (s *TrainingService) TrainingStatus(ctx context.Context, bot *models.Bot) (*TrainingStatus, error) {
	docs, err := s.ListDocuments(ctx, bot)
	if err != nil {
		return nil, err
	}
	sites, err := s.ListWebsites(ctx, bot)
	if err != nil {
		return nil, err
	}
	vectors, err := s.store.Stats(ctx, core.Filter{models.MetaChatbotID: bot.ID})
	if err != nil {
		return nil, err
	}
	return &TrainingStatus{
		BotID:     bot.ID,
		Documents: docs,
		Websites:  sites,
		Vectors:   vectors,
		Stats: models.BotStats{
			TotalDocuments:   bot.TotalDocuments,
			TotalChunks:      bot.TotalChunks,
			LastTrainingDate: bot.LastTrainingDate,
		},
	}, nil
}

// DeleteDocument removes a document's vectors, its record and its stored original.
func (s *TrainingService) DeleteDocument(ctx context.Context, bot *models.Bot, docID string) error {
	doc, err := s.db.GetSourceDocument(ctx, docID)
	if err != nil {
		return err
	}
	if doc.BotID != bot.ID {
		return core.NewError(core.KindNotFound, "document "+docID, nil)
	}

	removed, err := s.store.DeleteByFilter(ctx, core.Filter{
		models.MetaChatbotID:  bot.ID,
		models.MetaDocumentID: doc.ID,
	})
	if err != nil {
		return fmt.Errorf("delete document vectors: %w", err)
	}
	if err := s.db.DeleteSourceDocument(ctx, doc.ID); err != nil {
		return err
	}
	s.deleteOriginal(ctx, doc.StorageURL)
	s.recompute(ctx, bot.ID)

	s.log.Info("document deleted", zap.String("bot_id", bot.ID), zap.String("document_id", doc.ID), zap.Int("vectors", removed))
	return nil
}

// DeleteWebsite removes a crawl's vectors and its record.
func (s *TrainingService) DeleteWebsite(ctx context.Context, bot *models.Bot, crawlID string) error {
	crawl, err := s.db.GetWebsiteCrawl(ctx, crawlID)
	if err != nil {
		return err
	}
	if crawl.BotID != bot.ID {
		return core.NewError(core.KindNotFound, "website crawl "+crawlID, nil)
	}

	removed, err := s.store.DeleteByFilter(ctx, core.Filter{
		models.MetaChatbotID:      bot.ID,
		models.MetaWebsiteCrawlID: crawl.ID,
	})
	if err != nil {
		return fmt.Errorf("delete website vectors: %w", err)
	}
	if err := s.db.DeleteWebsiteCrawl(ctx, crawl.ID); err != nil {
		return err
	}
	s.recompute(ctx, bot.ID)

	s.log.Info("website deleted", zap.String("bot_id", bot.ID), zap.String("crawl_id", crawl.ID), zap.Int("vectors", removed))
	return nil
}

// ClearTrainingData drops every vector, document and crawl of the bot.
func (s *TrainingService) ClearTrainingData(ctx context.Context, bot *models.Bot) error {
	removed, err := s.store.DeleteByFilter(ctx, core.Filter{models.MetaChatbotID: bot.ID})
	if err != nil {
		return fmt.Errorf("delete bot vectors: %w", err)
	}

	docs, err := s.db.ListSourceDocumentsByBot(ctx, bot.ID)
	if err != nil {
		return err
	}
	if _, err := s.db.DeleteSourceDocumentsByBot(ctx, bot.ID); err != nil {
		return err
	}
	if _, err := s.db.DeleteWebsiteCrawlsByBot(ctx, bot.ID); err != nil {
		return err
	}
	originals, err := s.storage.DeletePrefix(ctx, s.bucket, objectclient.BotPrefix(bot.ID))
	if err != nil {
		s.log.Warn("delete stored originals", zap.String("bot_id", bot.ID), zap.Error(err))
	}
	s.recompute(ctx, bot.ID)

	s.log.Info("training data cleared", zap.String("bot_id", bot.ID), zap.Int("vectors", removed),
		zap.Int("documents", len(docs)), zap.Int("originals", originals))
	return nil
}

func (s *TrainingService) deleteOriginal(ctx context.Context, storageURL string) {
	if storageURL == "" {
		return
	}
	bucket, key := objectclient.ParseURL(storageURL)
	if key == "" {
		return
	}
	if err := s.storage.DeleteFile(ctx, bucket, key); err != nil {
		s.log.Warn("delete stored original", zap.String("url", storageURL), zap.Error(err))
	}
}

// recompute refreshes the bot counters and keeps the last training date.
func (s *TrainingService) recompute(ctx context.Context, botID string) {
	if _, err := s.db.RecomputeBotTrainingStats(ctx, botID, time.Time{}); err != nil {
		s.log.Warn("recompute bot stats", zap.String("bot_id", botID), zap.Error(err))
	}
}
