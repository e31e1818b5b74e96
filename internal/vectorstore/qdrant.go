package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// payloadIDField stores the caller-supplied id when it isn't itself a UUID
// (Qdrant only accepts UUIDs or positive integers as point ids), the same
// workaround qdrant_vector.go uses.
const payloadIDField = "_original_id"

// QdrantStore is the Qdrant-backed Store, grounded on
// manifold/internal/persistence/databases/qdrant_vector.go.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     string
}

// NewQdrantStore dials Qdrant's gRPC API (default port 6334) and ensures the
// configured collection exists, creating it with the requested distance
// metric if not.
func NewQdrantStore(dsn, collection string, dimensions int, metric string) (*QdrantStore, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant dsn: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	q := &QdrantStore{
		client:     client,
		collection: collection,
		dimension:  dimensions,
		metric:     strings.ToLower(strings.TrimSpace(metric)),
	}
	if err := q.ensureCollection(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return q, nil
}

func (q *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	if q.dimension <= 0 {
		return fmt.Errorf("qdrant requires dimensions > 0")
	}
	var distance qdrant.Distance
	switch q.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	case "manhattan":
		distance = qdrant.Distance_Manhattan
	default:
		distance = qdrant.Distance_Cosine
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: distance,
		}),
	})
}

func pointIDFor(id string) (string, bool) {
	if _, err := uuid.Parse(id); err == nil {
		return id, false
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String(), true
}

func (q *QdrantStore) Upsert(ctx context.Context, points []Point) error {
	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		uuidStr, remapped := pointIDFor(p.ID)
		payload := make(map[string]any, len(p.Metadata)+1)
		for k, v := range p.Metadata {
			payload[k] = v
		}
		if remapped {
			payload[payloadIDField] = p.ID
		}
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuidStr),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		})
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         structs,
	})
	return err
}

func (q *QdrantStore) Delete(ctx context.Context, ids []string) error {
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		uuidStr, _ := pointIDFor(id)
		pointIDs = append(pointIDs, qdrant.NewIDUUID(uuidStr))
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	return err
}

func (q *QdrantStore) DeleteByMetadata(ctx context.Context, filter map[string]string) error {
	if len(filter) == 0 {
		return fmt.Errorf("delete by metadata requires at least one filter key")
	}
	must := make([]*qdrant.Condition, 0, len(filter))
	for k, v := range filter {
		must = append(must, qdrant.NewMatch(k, v))
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelectorFilter(&qdrant.Filter{Must: must}),
	})
	return err
}

// ListByMetadata scrolls through every point matching filter, paging with
// Qdrant's Scroll API until it runs dry.
func (q *QdrantStore) ListByMetadata(ctx context.Context, filter map[string]string) ([]Point, error) {
	must := make([]*qdrant.Condition, 0, len(filter))
	for k, v := range filter {
		must = append(must, qdrant.NewMatch(k, v))
	}
	var qFilter *qdrant.Filter
	if len(must) > 0 {
		qFilter = &qdrant.Filter{Must: must}
	}

	var out []Point
	var offset *qdrant.PointId
	const pageSize = 256
	for {
		limit := uint32(pageSize)
		page, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: q.collection,
			Filter:         qFilter,
			Limit:          &limit,
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("scroll points: %w", err)
		}
		for _, pt := range page {
			uuidStr := pt.Id.GetUuid()
			metadata := map[string]string{}
			originalID := ""
			if pt.Payload != nil {
				for k, v := range pt.Payload {
					if k == payloadIDField {
						originalID = v.GetStringValue()
						continue
					}
					metadata[k] = v.GetStringValue()
				}
			}
			id := originalID
			if id == "" {
				id = uuidStr
			}
			out = append(out, Point{ID: id, Metadata: metadata})
		}
		if len(page) < pageSize {
			break
		}
		offset = page[len(page)-1].Id
	}
	return out, nil
}

func (q *QdrantStore) SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Result, error) {
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)

	var queryFilter *qdrant.Filter
	if len(filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter))
		for k, v := range filter {
			must = append(must, qdrant.NewMatch(k, v))
		}
		queryFilter = &qdrant.Filter{Must: must}
	}

	limit := uint64(k)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         queryFilter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		uuidStr := hit.Id.GetUuid()
		if uuidStr == "" {
			uuidStr = hit.Id.String()
		}
		metadata := map[string]string{}
		originalID := ""
		if hit.Payload != nil {
			for k, v := range hit.Payload {
				if k == payloadIDField {
					originalID = v.GetStringValue()
					continue
				}
				metadata[k] = v.GetStringValue()
			}
		}
		id := originalID
		if id == "" {
			id = uuidStr
		}
		results = append(results, Result{ID: id, Score: float64(hit.Score), Metadata: metadata})
	}
	return results, nil
}

func (q *QdrantStore) Dimension() int { return q.dimension }

func (q *QdrantStore) Close() error { return q.client.Close() }
