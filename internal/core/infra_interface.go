package core

import (
	"context"
	"io"
	"time"

	"github.com/markdave123-py/botwise/internal/models"
)

// DbClient defines the persistence operations the core needs.
// Missing rows are reported as ErrNotFound.
type DbClient interface {
	CreateBot(ctx context.Context, bot *models.Bot) error
	GetBotByID(ctx context.Context, id string) (*models.Bot, error)
	RecordBotMessage(ctx context.Context, botID string, at time.Time) error
	RecomputeBotTrainingStats(ctx context.Context, botID string, trainedAt time.Time) (models.BotStats, error)

	CreateSourceDocument(ctx context.Context, doc *models.SourceDocument) error
	GetSourceDocument(ctx context.Context, id string) (*models.SourceDocument, error)
	ListSourceDocumentsByBot(ctx context.Context, botID string) ([]models.SourceDocument, error)
	SaveSourceDocument(ctx context.Context, doc *models.SourceDocument) error
	DeleteSourceDocument(ctx context.Context, id string) error
	DeleteSourceDocumentsByBot(ctx context.Context, botID string) (int, error)

	CreateWebsiteCrawl(ctx context.Context, crawl *models.WebsiteCrawl) error
	GetWebsiteCrawl(ctx context.Context, id string) (*models.WebsiteCrawl, error)
	ListWebsiteCrawlsByBot(ctx context.Context, botID string) ([]models.WebsiteCrawl, error)
	SaveWebsiteCrawl(ctx context.Context, crawl *models.WebsiteCrawl) error
	DeleteWebsiteCrawl(ctx context.Context, id string) error
	DeleteWebsiteCrawlsByBot(ctx context.Context, botID string) (int, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	DeletePrefix(ctx context.Context, bucket, prefix string) (int, error)
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// HistoryStore keeps recent conversation turns per chat session.
type HistoryStore interface {
	Recent(ctx context.Context, botID, sessionID string, n int) ([]models.ConversationTurn, error)
	Append(ctx context.Context, botID, sessionID string, turn models.ConversationTurn) error
}
