// Package semantic is the sole owner of all Qdrant operations: collection
// lifecycle, idempotent upserts keyed by record id, and filtered
// similarity search.
package semantic

import (
	"context"
	"fmt"
	"strconv"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// VectorStore wraps one Qdrant collection.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, collection string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	return v.conn.Close()
}

// Exists reports whether the collection is present.
func (v *VectorStore) Exists(ctx context.Context) (bool, error) {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return true, nil
		}
	}
	return false, nil
}

// EnsureCollection creates the collection (cosine distance, dims wide)
// if it does not already exist.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	ok, err := v.Exists(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}
	return nil
}

// Upsert writes entries, overwriting any point with the same record id.
func (v *VectorStore) Upsert(ctx context.Context, entries []VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(entries))
	for i, e := range entries {
		points[i] = &pb.PointStruct{
			Id: numID(e.ID),
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: e.Embedding},
				},
			},
			Payload: toPayload(e.Payload),
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(entries), err)
	}
	return nil
}

// ExistingIDs returns the subset of ids that already have a point in the
// collection. Used by the indexer's skip-existing mode.
func (v *VectorStore) ExistingIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pointIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = numID(id)
	}

	resp, err := v.points.Get(ctx, &pb.GetPoints{
		CollectionName: v.collection,
		Ids:            pointIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: get points: %w", err)
	}

	existing := make(map[int64]bool, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		existing[int64(p.GetId().GetNum())] = true
	}
	return existing, nil
}

// Search performs k-NN similarity search with optional equality metadata
// filters. A nil or empty filter map searches the whole collection.
func (v *VectorStore) Search(ctx context.Context, embedding []float32, topK int, filters map[string]any) ([]SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if cond := buildConditions(filters); len(cond) > 0 {
		req.Filter = &pb.Filter{Must: cond}
	}

	resp, err := v.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	results := make([]SearchResult, len(resp.GetResult()))
	for i, p := range resp.GetResult() {
		results[i] = scoredPointToResult(p)
	}
	return results, nil
}

func scoredPointToResult(p *pb.ScoredPoint) SearchResult {
	sr := SearchResult{
		ID:    int64(p.GetId().GetNum()),
		Score: p.GetScore(),
		Meta:  make(map[string]any),
	}
	for k, val := range p.GetPayload() {
		switch k {
		case "content":
			sr.Content = val.GetStringValue()
		case "source":
			sr.Source = val.GetStringValue()
		default:
			sr.Meta[k] = fromValue(val)
		}
	}
	return sr
}

func numID(id int64) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(id)}}
}

// buildConditions turns an equality filter map into Qdrant match
// conditions. Integral numbers match as integers, booleans as booleans,
// everything else as keywords. A string that parses as an integer
// matches either representation: /filters reads metadata back as text,
// so a year stored as an integer payload must still match when the
// client echoes it as "2021".
func buildConditions(filters map[string]any) []*pb.Condition {
	if len(filters) == 0 {
		return nil
	}
	conds := make([]*pb.Condition, 0, len(filters))
	for k, val := range filters {
		switch tv := val.(type) {
		case string:
			conds = append(conds, stringCondition(k, tv))
		case int:
			conds = append(conds, fieldMatch(k, &pb.Match{MatchValue: &pb.Match_Integer{Integer: int64(tv)}}))
		case int64:
			conds = append(conds, fieldMatch(k, &pb.Match{MatchValue: &pb.Match_Integer{Integer: tv}}))
		case float64:
			if tv == float64(int64(tv)) {
				conds = append(conds, fieldMatch(k, &pb.Match{MatchValue: &pb.Match_Integer{Integer: int64(tv)}}))
			} else {
				conds = append(conds, fieldMatch(k, &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: fmt.Sprint(tv)}}))
			}
		case bool:
			conds = append(conds, fieldMatch(k, &pb.Match{MatchValue: &pb.Match_Boolean{Boolean: tv}}))
		default:
			conds = append(conds, fieldMatch(k, &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: fmt.Sprint(tv)}}))
		}
	}
	return conds
}

// stringCondition matches a string filter value. Numeric-looking strings
// become a should-group over the keyword and integer representations so
// the filter works regardless of how the payload stored the value.
func stringCondition(key, s string) *pb.Condition {
	kw := fieldMatch(key, &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: s}})
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return kw
	}
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Filter{
			Filter: &pb.Filter{
				Should: []*pb.Condition{
					kw,
					fieldMatch(key, &pb.Match{MatchValue: &pb.Match_Integer{Integer: n}}),
				},
			},
		},
	}
}

func fieldMatch(key string, match *pb.Match) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{Key: key, Match: match},
		},
	}
}

func toPayload(m map[string]any) map[string]*pb.Value {
	payload := make(map[string]*pb.Value, len(m))
	for k, val := range m {
		switch tv := val.(type) {
		case string:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
		case int:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
		case int64:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
		case float64:
			payload[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
		case bool:
			payload[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
		case nil:
			payload[k] = &pb.Value{Kind: &pb.Value_NullValue{}}
		default:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
		}
	}
	return payload
}

func fromValue(v *pb.Value) any {
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_IntegerValue:
		return kind.IntegerValue
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	case *pb.Value_BoolValue:
		return kind.BoolValue
	case *pb.Value_NullValue:
		return nil
	default:
		return v.String()
	}
}
