package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/markdave123-py/botwise/internal/core"
	"github.com/markdave123-py/botwise/internal/models"
)

const milvusVectorField = "vector"

// scalar metadata keys that have their own column; everything else is read from the JSON field
var milvusColumns = map[string]string{
	models.MetaChatbotID:  "chatbot_id",
	models.MetaSourceType: "source_type",
	models.MetaSource:     "source",
}

var milvusOutFields = []string{"chatbot_id", "metadata"}

type MilvusConfig struct {
	Address    string
	Username   string
	Password   string
	DBName     string
	Collection string
	Dim        int
}

type MilvusIndex struct {
	cli         mclient.Client
	collection  string
	dim         int
	searchParam entity.SearchParam
}

var _ core.VectorIndex = (*MilvusIndex)(nil)

// NewMilvusIndex connects, creates the database and collection when missing and loads it.
func NewMilvusIndex(ctx context.Context, cfg MilvusConfig) (*MilvusIndex, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, errors.New("milvus address is empty")
	}
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("invalid vectorDim: %d", cfg.Dim)
	}
	if cfg.DBName == "" {
		cfg.DBName = "botwise"
	}
	if cfg.Collection == "" {
		cfg.Collection = "bot_vectors"
	}

	cli, err := connectMilvus(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := ensureMilvusCollection(ctx, cli, cfg.Collection, cfg.Dim); err != nil {
		_ = cli.Close()
		return nil, err
	}
	sp, err := entity.NewIndexAUTOINDEXSearchParam(1)
	if err != nil {
		_ = cli.Close()
		return nil, err
	}
	return &MilvusIndex{cli: cli, collection: cfg.Collection, dim: cfg.Dim, searchParam: sp}, nil
}

func connectMilvus(ctx context.Context, cfg MilvusConfig) (mclient.Client, error) {
	defaultCli, err := mclient.NewClient(ctx, mclient.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   "default",
	})
	if err != nil {
		return nil, err
	}
	defer defaultCli.Close()

	dbs, err := defaultCli.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	exists := false
	for _, db := range dbs {
		if db.Name == cfg.DBName {
			exists = true
			break
		}
	}
	if !exists {
		if err := defaultCli.CreateDatabase(ctx, cfg.DBName); err != nil {
			return nil, err
		}
	}

	return mclient.NewClient(ctx, mclient.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.DBName,
	})
}

func ensureMilvusCollection(ctx context.Context, cli mclient.Client, collection string, dim int) error {
	has, err := cli.HasCollection(ctx, collection)
	if err != nil {
		return err
	}
	if !has {
		schema := &entity.Schema{
			CollectionName: collection,
			Description:    "Botwise training vectors",
			Fields: []*entity.Field{
				{
					Name:       "id",
					DataType:   entity.FieldTypeVarChar,
					PrimaryKey: true,
					TypeParams: map[string]string{"max_length": "128"},
				},
				{
					Name:       milvusVectorField,
					DataType:   entity.FieldTypeFloatVector,
					TypeParams: map[string]string{entity.TypeParamDim: strconv.Itoa(dim)},
				},
				{
					Name:       "chatbot_id",
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "64"},
				},
				{
					Name:       "source_type",
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "16"},
				},
				{
					Name:       "source",
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "2048"},
				},
				{
					Name:     "metadata",
					DataType: entity.FieldTypeJSON,
				},
			},
		}
		if err := cli.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return err
		}
		idx, err := entity.NewIndexAUTOINDEX(entity.COSINE)
		if err != nil {
			return err
		}
		if err := cli.CreateIndex(ctx, collection, milvusVectorField, idx, false); err != nil {
			return err
		}
	}
	return cli.LoadCollection(ctx, collection, false)
}

func (s *MilvusIndex) Dimensions() int { return s.dim }

func (s *MilvusIndex) Close() error { return s.cli.Close() }

func (s *MilvusIndex) Upsert(ctx context.Context, records []models.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	ids := make([]string, 0, len(records))
	vectors := make([][]float32, 0, len(records))
	bots := make([]string, 0, len(records))
	sourceTypes := make([]string, 0, len(records))
	sources := make([]string, 0, len(records))
	metas := make([][]byte, 0, len(records))

	for _, r := range records {
		if r.ID == "" {
			return errors.New("upsert record missing ID")
		}
		if len(r.Values) != s.dim {
			return fmt.Errorf("vector dim mismatch for id=%s, got=%d want=%d", r.ID, len(r.Values), s.dim)
		}
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return err
		}
		ids = append(ids, r.ID)
		vectors = append(vectors, r.Values)
		bots = append(bots, r.Metadata.ChatbotID)
		sourceTypes = append(sourceTypes, string(r.Metadata.SourceType))
		sources = append(sources, r.Metadata.Source)
		metas = append(metas, meta)
	}

	_, err := s.cli.Upsert(
		ctx,
		s.collection,
		"",
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnFloatVector(milvusVectorField, s.dim, vectors),
		entity.NewColumnVarChar("chatbot_id", bots),
		entity.NewColumnVarChar("source_type", sourceTypes),
		entity.NewColumnVarChar("source", sources),
		entity.NewColumnJSONBytes("metadata", metas),
	)
	return err
}

func (s *MilvusIndex) Query(ctx context.Context, vector []float32, filter core.Filter, topK int) ([]core.QueryMatch, error) {
	if topK <= 0 {
		return nil, nil
	}
	if len(vector) != s.dim {
		return nil, fmt.Errorf("vector dim mismatch, got=%d want=%d", len(vector), s.dim)
	}
	expr := milvusExpr(filter)

	// cosine similarity is undefined for the zero vector; list by filter instead
	if isZero(vector) {
		rs, err := s.cli.Query(ctx, s.collection, []string{}, exprOrAll(expr), append([]string{"id"}, milvusOutFields...), mclient.WithLimit(int64(topK)))
		if err != nil {
			return nil, err
		}
		return parseMilvusRows(columnByName(rs, "id"), rs, nil, rs.Len())
	}

	res, err := s.cli.Search(
		ctx,
		s.collection,
		[]string{},
		expr,
		milvusOutFields,
		[]entity.Vector{entity.FloatVector(vector)},
		milvusVectorField,
		entity.COSINE,
		topK,
		s.searchParam,
	)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, nil
	}
	sr := res[0]
	if sr.Err != nil {
		return nil, sr.Err
	}
	return parseMilvusRows(sr.IDs, sr.Fields, sr.Scores, sr.ResultCount)
}

func (s *MilvusIndex) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	quoted := make([]string, 0, len(ids))
	for _, id := range ids {
		quoted = append(quoted, strconv.Quote(id))
	}
	return s.cli.Delete(ctx, s.collection, "", fmt.Sprintf(`id in [%s]`, strings.Join(quoted, ",")))
}

func (s *MilvusIndex) Count(ctx context.Context, filter core.Filter) (int, error) {
	rs, err := s.cli.Query(ctx, s.collection, []string{}, milvusExpr(filter), []string{"count(*)"})
	if err != nil {
		return 0, err
	}
	col := columnByName(rs, "count(*)")
	if col == nil || col.Len() == 0 {
		return 0, nil
	}
	n, err := col.GetAsInt64(0)
	return int(n), err
}

func parseMilvusRows(idCol entity.Column, fields mclient.ResultSet, scores []float32, count int) ([]core.QueryMatch, error) {
	if idCol == nil {
		return nil, errors.New("milvus result without id column")
	}
	metaCol := columnByName(fields, "metadata")
	out := make([]core.QueryMatch, 0, count)
	for i := 0; i < count; i++ {
		id, err := idCol.GetAsString(i)
		if err != nil {
			return nil, err
		}
		m := core.QueryMatch{ID: id}
		if i < len(scores) {
			m.Score = scores[i]
		}
		if metaCol != nil {
			v, _ := metaCol.Get(i)
			if bs, ok := v.([]byte); ok {
				if err := json.Unmarshal(bs, &m.Metadata); err != nil {
					return nil, fmt.Errorf("decode metadata of %s: %w", id, err)
				}
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// milvusExpr renders an exact-match AND filter as a boolean expression.
func milvusExpr(filter core.Filter) string {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := strconv.Quote(filter[k])
		if n, ok := models.NumericMetaValue(k, filter[k]); ok {
			v = strconv.Itoa(n)
		}
		if col, ok := milvusColumns[k]; ok {
			parts = append(parts, col+" == "+v)
		} else {
			parts = append(parts, fmt.Sprintf("metadata[%s] == %s", strconv.Quote(k), v))
		}
	}
	return strings.Join(parts, " && ")
}

func exprOrAll(expr string) string {
	if expr == "" {
		return `id != ""`
	}
	return expr
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func columnByName(cols mclient.ResultSet, name string) entity.Column {
	for _, c := range cols {
		if c != nil && c.Name() == name {
			return c
		}
	}
	return nil
}
