package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8"

	"lms-backend/pkg/models"
)

const (
	CourseIndex = "courses"
	ModuleIndex = "modules"
)

type CourseDoc struct {
	ID              uint                `json:"id"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	Status          models.CourseStatus `json:"status"`
	DifficultyLevel models.Difficulty   `json:"difficulty_level"`
	CategoryID      *uint               `json:"category_id,omitempty"`
	Tags            json.RawMessage     `json:"tags,omitempty"`
}

type ModuleDoc struct {
	ID          uint               `json:"id"`
	CourseID    uint               `json:"course_id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	ContentType models.ContentType `json:"content_type"`
	OrderIndex  int                `json:"order_index"`
}

// Indexer keeps the search index in step with the catalog.
type Indexer interface {
	IndexCourse(ctx context.Context, c models.Course) error
	DeleteCourse(ctx context.Context, id uint) error
	IndexModule(ctx context.Context, m models.Module) error
	DeleteModule(ctx context.Context, id uint) error
}

type Searcher interface {
	SearchCourses(ctx context.Context, q string, deep bool) ([]map[string]interface{}, error)
	SearchModules(ctx context.Context, courseID uint, q string, deep bool) ([]map[string]interface{}, error)
}

type ES struct {
	client *elasticsearch.Client
}

func NewES(client *elasticsearch.Client) *ES {
	return &ES{client: client}
}

func CourseDocument(c models.Course) CourseDoc {
	doc := CourseDoc{
		ID:              c.ID,
		Title:           c.Title,
		Description:     c.Description,
		Status:          c.Status,
		DifficultyLevel: c.DifficultyLevel,
		CategoryID:      c.CategoryID,
	}
	if len(c.Tags) > 0 {
		doc.Tags = json.RawMessage(c.Tags)
	}
	return doc
}

func ModuleDocument(m models.Module) ModuleDoc {
	return ModuleDoc{
		ID:          m.ID,
		CourseID:    m.CourseID,
		Title:       m.Title,
		Description: m.Description,
		ContentType: m.ContentType,
		OrderIndex:  m.OrderIndex,
	}
}

func (e *ES) IndexCourse(ctx context.Context, c models.Course) error {
	return e.index(ctx, CourseIndex, c.ID, CourseDocument(c))
}

func (e *ES) DeleteCourse(ctx context.Context, id uint) error {
	return e.delete(ctx, CourseIndex, id)
}

func (e *ES) IndexModule(ctx context.Context, m models.Module) error {
	return e.index(ctx, ModuleIndex, m.ID, ModuleDocument(m))
}

func (e *ES) DeleteModule(ctx context.Context, id uint) error {
	return e.delete(ctx, ModuleIndex, id)
}

func (e *ES) index(ctx context.Context, index string, id uint, doc interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	res, err := e.client.Index(
		index,
		bytes.NewReader(data),
		e.client.Index.WithContext(ctx),
		e.client.Index.WithDocumentID(strconv.FormatUint(uint64(id), 10)),
		e.client.Index.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("index %s/%d: %w", index, id, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch error: %s", res.String())
	}
	return nil
}

func (e *ES) delete(ctx context.Context, index string, id uint) error {
	res, err := e.client.Delete(index, strconv.FormatUint(uint64(id), 10),
		e.client.Delete.WithContext(ctx),
		e.client.Delete.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("delete %s/%d: %w", index, id, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("elasticsearch error: %s", res.String())
	}
	return nil
}

func (e *ES) SearchCourses(ctx context.Context, q string, deep bool) ([]map[string]interface{}, error) {
	fields := []string{"title"}
	if deep {
		fields = append(fields, "description")
	}
	return e.search(ctx, CourseIndex, wildcardQuery(q, fields, nil))
}

func (e *ES) SearchModules(ctx context.Context, courseID uint, q string, deep bool) ([]map[string]interface{}, error) {
	fields := []string{"title"}
	if deep {
		fields = append(fields, "description")
	}
	filter := map[string]interface{}{"term": map[string]interface{}{"course_id": courseID}}
	return e.search(ctx, ModuleIndex, wildcardQuery(q, fields, filter))
}

func (e *ES) search(ctx context.Context, index string, query map[string]interface{}) ([]map[string]interface{}, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, err
	}
	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(index),
		e.client.Search.WithBody(&buf),
		e.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch error: %s", res.String())
	}
	return decodeHits(res.Body)
}

// wildcardQuery matches *q* case-insensitively on any of fields,
// optionally inside a filter clause.
func wildcardQuery(q string, fields []string, filter map[string]interface{}) map[string]interface{} {
	should := make([]interface{}, 0, len(fields))
	for _, f := range fields {
		should = append(should, map[string]interface{}{
			"wildcard": map[string]interface{}{
				f: map[string]interface{}{
					"value":            "*" + q + "*",
					"case_insensitive": true,
				},
			},
		})
	}
	match := map[string]interface{}{
		"bool": map[string]interface{}{"should": should, "minimum_should_match": 1},
	}
	if filter == nil {
		return map[string]interface{}{"query": match}
	}
	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{filter, match},
			},
		},
	}
}

func decodeHits(body io.Reader) ([]map[string]interface{}, error) {
	var r struct {
		Hits struct {
			Hits []struct {
				Source map[string]interface{} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	results := make([]map[string]interface{}, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		if h.Source != nil {
			results = append(results, h.Source)
		}
	}
	return results, nil
}

// Nop is used when no Elasticsearch address is configured.
type Nop struct{}

func (Nop) IndexCourse(context.Context, models.Course) error { return nil }
func (Nop) DeleteCourse(context.Context, uint) error         { return nil }
func (Nop) IndexModule(context.Context, models.Module) error { return nil }
func (Nop) DeleteModule(context.Context, uint) error         { return nil }

func (Nop) SearchCourses(context.Context, string, bool) ([]map[string]interface{}, error) {
	return []map[string]interface{}{}, nil
}

func (Nop) SearchModules(context.Context, uint, string, bool) ([]map[string]interface{}, error) {
	return []map[string]interface{}{}, nil
}
