package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markdave123-py/botwise/internal/core"
	"github.com/markdave123-py/botwise/internal/core/extractor"
	"github.com/markdave123-py/botwise/internal/core/ingestion_engine"
	"github.com/markdave123-py/botwise/internal/models"
)

const (
	DefaultCrawlDepth = 1
	MaxCrawlDepth     = 3
)

type FileMetadata struct {
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
}

// FileInput is one uploaded training file with its content base64 encoded.
type FileInput struct {
	Content  string       `json:"content"`
	Metadata FileMetadata `json:"metadata"`
}

type Rejection struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type TrainResult struct {
	Documents []models.SourceDocument `json:"documents"`
	Websites  []models.WebsiteCrawl   `json:"websites"`
	Rejected  []Rejection             `json:"rejected"`
}

type TrainingService struct {
	db       core.DbClient
	storage  core.ObjectClient
	store    core.VectorStore
	ingestor ingestion_engine.Ingestor
	bucket   string
	log      *zap.Logger
	now      func() time.Time
}

func NewTrainingService(
	db core.DbClient,
	storage core.ObjectClient,
	store core.VectorStore,
	ingestor ingestion_engine.Ingestor,
	bucket string,
	log *zap.Logger,
) *TrainingService {
	if log == nil {
		log = zap.NewNop()
	}
	return &TrainingService{
		db: db, storage: storage, store: store, ingestor: ingestor,
		bucket: bucket, log: log, now: time.Now,
	}
}

// TrainFiles stores every acceptable file and schedules it for ingestion. A bad
// file is reported in Rejected and does not stop the rest of the batch.
func (s *TrainingService) TrainFiles(ctx context.Context, bot *models.Bot, files []FileInput) (*TrainResult, error) {
	res := &TrainResult{Documents: []models.SourceDocument{}, Websites: []models.WebsiteCrawl{}, Rejected: []Rejection{}}
	for _, f := range files {
		name := strings.TrimSpace(f.Metadata.OriginalName)
		data, err := decodeFile(f)
		if err != nil {
			res.Rejected = append(res.Rejected, Rejection{Name: name, Error: err.Error()})
			continue
		}
		doc, err := s.createDocument(ctx, bot, name, f.Metadata.MimeType, data)
		if err != nil {
			if errors.Is(err, core.ErrInvalidInput) || errors.Is(err, core.ErrUnsupportedFormat) || errors.Is(err, ingestion_engine.ErrQueueFull) {
				res.Rejected = append(res.Rejected, Rejection{Name: name, Error: err.Error()})
				continue
			}
			return res, err
		}
		res.Documents = append(res.Documents, *doc)
	}
	return res, nil
}

// TrainText stores pasted content as a plain text document.
func (s *TrainingService) TrainText(ctx context.Context, bot *models.Bot, title, text string) (*models.SourceDocument, error) {
	if strings.TrimSpace(text) == "" {
		return nil, core.NewError(core.KindInvalidInput, "text is empty", nil)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "pasted-text"
	}
	if !strings.HasSuffix(strings.ToLower(title), ".txt") {
		title += ".txt"
	}
	return s.createDocument(ctx, bot, title, "text/plain", []byte(text))
}

// TrainWebsite schedules a crawl. A nil depth uses DefaultCrawlDepth; any
// depth is clamped to [0, MaxCrawlDepth].
func (s *TrainingService) TrainWebsite(ctx context.Context, bot *models.Bot, rawURL string, maxDepth *int) (*models.WebsiteCrawl, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, core.NewError(core.KindInvalidInput, fmt.Sprintf("invalid website url %q", rawURL), nil)
	}
	depth := DefaultCrawlDepth
	if maxDepth != nil {
		depth = min(max(*maxDepth, 0), MaxCrawlDepth)
	}

	now := s.now()
	crawl := &models.WebsiteCrawl{
		ID:        uuid.NewString(),
		BotID:     bot.ID,
		URL:       u.String(),
		MaxDepth:  depth,
		Status:    models.CrawlPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.CreateWebsiteCrawl(ctx, crawl); err != nil {
		return nil, fmt.Errorf("create website crawl: %w", err)
	}
	if err := s.ingestor.Enqueue(ingestion_engine.Job{Kind: ingestion_engine.JobWebsite, ID: crawl.ID}); err != nil {
		crawl.Status = models.CrawlFailed
		crawl.Error = err.Error()
		crawl.CompletedAt = &now
		if serr := s.db.SaveWebsiteCrawl(context.WithoutCancel(ctx), crawl); serr != nil {
			s.log.Error("mark crawl failed", zap.String("crawl_id", crawl.ID), zap.Error(serr))
		}
		return nil, err
	}
	s.log.Info("website queued", zap.String("bot_id", bot.ID), zap.String("crawl_id", crawl.ID), zap.String("url", crawl.URL), zap.Int("max_depth", depth))
	return crawl, nil
}

func (s *TrainingService) createDocument(ctx context.Context, bot *models.Bot, name, mimeType string, data []byte) (*models.SourceDocument, error) {
	if name == "" {
		return nil, core.NewError(core.KindInvalidInput, "file name is required", nil)
	}
	if extractor.ResolveFormat(mimeType, name) == extractor.FormatUnknown {
		return nil, core.NewError(core.KindUnsupportedFormat, fmt.Sprintf("%s (%s)", name, mimeType), nil)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	docID := uuid.NewString()
	loc, err := s.storage.UploadFile(ctx, s.bucket, objectclient.DocumentKey(bot.ID, docID, name), bytes.NewReader(data), mimeType)
	if err != nil {
		return nil, fmt.Errorf("store original %s: %w", name, err)
	}

	now := s.now()
	doc := &models.SourceDocument{
		ID:           docID,
		BotID:        bot.ID,
		OriginalName: name,
		MimeType:     mimeType,
		Size:         int64(len(data)),
		StorageURL:   loc,
		Status:       models.DocumentPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.CreateSourceDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create source document: %w", err)
	}
	if err := s.ingestor.Enqueue(ingestion_engine.Job{Kind: ingestion_engine.JobDocument, ID: doc.ID}); err != nil {
		doc.Status = models.DocumentError
		doc.Error = err.Error()
		doc.ProcessingEndTime = &now
		if serr := s.db.SaveSourceDocument(context.WithoutCancel(ctx), doc); serr != nil {
			s.log.Error("mark document failed", zap.String("document_id", doc.ID), zap.Error(serr))
		}
		return nil, err
	}
	s.log.Info("document queued", zap.String("bot_id", bot.ID), zap.String("document_id", doc.ID), zap.String("name", name), zap.Int64("size", doc.Size))
	return doc, nil
}

func decodeFile(f FileInput) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(f.Content)
	if err != nil {
		return nil, core.NewError(core.KindInvalidInput, "content is not valid base64", err)
	}
	if len(data) == 0 {
		return nil, core.NewError(core.KindInvalidInput, "file is empty", nil)
	}
	if f.Metadata.Size > 0 && f.Metadata.Size != int64(len(data)) {
		return nil, core.NewError(core.KindInvalidInput,
			fmt.Sprintf("declared size %d does not match decoded size %d", f.Metadata.Size, len(data)), nil)
	}
	return data, nil
}
