package models

import (
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTemperature   float32 = 0.7
	DefaultMaxTokens             = 1024
	DefaultSystemMessage         = "You are a helpful assistant for this website. Answer only from the provided context. If the context does not contain the answer, say you don't know."
	DefaultPromptTemplate        = "Context:\n{context}\n\nConversation so far:\n{history}\n\nQuestion: {question}\n\nAnswer:"
)

// BotSettings are the per-bot answer settings. Zero values mean "use the default".
type BotSettings struct {
	Model          string   `json:"model,omitempty"`
	Temperature    *float32 `json:"temperature,omitempty"`
	MaxTokens      int      `json:"maxTokens,omitempty"`
	SystemMessage  string   `json:"systemMessage,omitempty"`
	PromptTemplate string   `json:"promptTemplate,omitempty"`
}

// WithDefaults returns a copy of s with every missing field filled in.
func (s BotSettings) WithDefaults(defaultModel string) BotSettings {
	out := s
	if strings.TrimSpace(out.Model) == "" {
		out.Model = defaultModel
	}
	t := DefaultTemperature
	if s.Temperature != nil {
		t = *s.Temperature
	}
	if t < 0 {
		t = 0
	}
	if t > 2 {
		t = 2
	}
	out.Temperature = &t
	if out.MaxTokens <= 0 {
		out.MaxTokens = DefaultMaxTokens
	}
	if strings.TrimSpace(out.SystemMessage) == "" {
		out.SystemMessage = DefaultSystemMessage
	}
	if strings.TrimSpace(out.PromptTemplate) == "" {
		out.PromptTemplate = DefaultPromptTemplate
	}
	return out
}

// TemperatureValue returns the configured temperature or the default.
func (s BotSettings) TemperatureValue() float32 {
	if s.Temperature == nil {
		return DefaultTemperature
	}
	return *s.Temperature
}

type Bot struct {
	ID               string      `json:"id"`
	UserID           string      `json:"userId"`
	Name             string      `json:"name"`
	Settings         BotSettings `json:"settings"`
	TotalDocuments   int         `json:"totalDocuments"`
	TotalChunks      int         `json:"totalChunks"`
	LastTrainingDate *time.Time  `json:"lastTrainingDate,omitempty"`
	MessageCount     int         `json:"messageCount"`
	LastActiveAt     *time.Time  `json:"lastActiveAt,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// BotStats is the derived training summary of a bot.
type BotStats struct {
	TotalDocuments   int        `json:"totalDocuments"`
	TotalChunks      int        `json:"totalChunks"`
	LastTrainingDate *time.Time `json:"lastTrainingDate,omitempty"`
}

type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentChunking   DocumentStatus = "chunking"
	DocumentEmbedding  DocumentStatus = "embedding"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentError      DocumentStatus = "error"
)

// Terminal reports whether no further transition is allowed.
func (s DocumentStatus) Terminal() bool {
	return s == DocumentCompleted || s == DocumentError
}

type SourceDocument struct {
	ID                  string         `json:"id"`
	BotID               string         `json:"botId"`
	OriginalName        string         `json:"originalName"`
	MimeType            string         `json:"mimeType"`
	Size                int64          `json:"size"`
	StorageURL          string         `json:"storageUrl,omitempty"`
	Status              DocumentStatus `json:"status"`
	Error               string         `json:"error,omitempty"`
	ChunkCount          int            `json:"chunkCount"`
	ProcessedChunkCount int            `json:"processedChunkCount"`
	ProcessingStartTime *time.Time     `json:"processingStartTime,omitempty"`
	ProcessingEndTime   *time.Time     `json:"processingEndTime,omitempty"`
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
}

// Progress is the percentage of chunks embedded and stored.
func (d *SourceDocument) Progress() int {
	return progress(d.ProcessedChunkCount, d.ChunkCount)
}

type CrawlStatus string

const (
	CrawlPending   CrawlStatus = "pending"
	CrawlCrawling  CrawlStatus = "crawling"
	CrawlEmbedding CrawlStatus = "embedding"
	CrawlCompleted CrawlStatus = "completed"
	CrawlFailed    CrawlStatus = "failed"
)

func (s CrawlStatus) Terminal() bool {
	return s == CrawlCompleted || s == CrawlFailed
}

type WebsiteCrawl struct {
	ID              string      `json:"id"`
	BotID           string      `json:"botId"`
	URL             string      `json:"url"`
	MaxDepth        int         `json:"maxDepth"`
	Status          CrawlStatus `json:"status"`
	PagesProcessed  int         `json:"pagesProcessed"`
	TotalChunks     int         `json:"totalChunks"`
	ProcessedChunks int         `json:"processedChunks"`
	Error           string      `json:"error,omitempty"`
	StartedAt       *time.Time  `json:"startedAt,omitempty"`
	CompletedAt     *time.Time  `json:"completedAt,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

func (c *WebsiteCrawl) Progress() int {
	return progress(c.ProcessedChunks, c.TotalChunks)
}

func progress(done, total int) int {
	if total <= 0 {
		return 0
	}
	p := done * 100 / total
	if p > 100 {
		p = 100
	}
	return p
}

type ChunkStatus string

const (
	ChunkPending  ChunkStatus = "pending"
	ChunkEmbedded ChunkStatus = "embedded"
	ChunkStored   ChunkStatus = "stored"
)

// Chunk is a bounded slice of one extracted unit. It is transient: only its
// vector record outlives the ingestion run.
type Chunk struct {
	ID          string      `json:"id"`
	Content     string      `json:"content"`
	Page        int         `json:"page"`
	Position    int         `json:"position"`
	Overlap     int         `json:"overlap"`
	CharCount   int         `json:"charCount"`
	TokenCount  int         `json:"tokenCount"`
	SourceLabel string      `json:"sourceLabel,omitempty"`
	Embedding   []float32   `json:"-"`
	Status      ChunkStatus `json:"status"`
}

type SourceType string

const (
	SourceTypeDocument SourceType = "document"
	SourceTypeWebsite  SourceType = "website"
)

// Metadata keys stored on every vector record.
const (
	MetaChatbotID      = "chatbotId"
	MetaSourceType     = "sourceType"
	MetaSource         = "source"
	MetaDocumentID     = "documentId"
	MetaWebsiteCrawlID = "websiteCrawlId"
	MetaText           = "text"
	MetaPage           = "page"
	MetaPosition       = "position"
	MetaTitle          = "title"
)

type VectorMetadata struct {
	ChatbotID      string     `json:"chatbotId"`
	SourceType     SourceType `json:"sourceType"`
	Source         string     `json:"source"`
	DocumentID     string     `json:"documentId,omitempty"`
	WebsiteCrawlID string     `json:"websiteCrawlId,omitempty"`
	Text           string     `json:"text"`
	Page           int        `json:"page,omitempty"`
	Position       int        `json:"position"`
	Title          string     `json:"title,omitempty"`
}

// Matches reports whether every key/value of filter equals the metadata field.
func (m VectorMetadata) Matches(filter map[string]string) bool {
	for k, v := range filter {
		if m.Field(k) != v {
			return false
		}
	}
	return true
}

// Field returns the string form of a filterable metadata key.
func (m VectorMetadata) Field(key string) string {
	switch key {
	case MetaChatbotID:
		return m.ChatbotID
	case MetaSourceType:
		return string(m.SourceType)
	case MetaSource:
		return m.Source
	case MetaDocumentID:
		return m.DocumentID
	case MetaWebsiteCrawlID:
		return m.WebsiteCrawlID
	case MetaText:
		return m.Text
	case MetaTitle:
		return m.Title
	case MetaPage:
		// page is omitted from the stored JSON when unset
		if m.Page == 0 {
			return ""
		}
		return strconv.Itoa(m.Page)
	case MetaPosition:
		return strconv.Itoa(m.Position)
	}
	return ""
}

// NumericMetaValue reports whether key is stored as a JSON number and, if so,
// the filter value parsed as one.
func NumericMetaValue(key, value string) (int, bool) {
	if key != MetaPage && key != MetaPosition {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return n, true
}

type VectorRecord struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata VectorMetadata `json:"metadata"`
}

// ConversationTurn is one user/assistant exchange.
type ConversationTurn struct {
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	CreatedAt time.Time `json:"createdAt"`
}
