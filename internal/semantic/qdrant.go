package semantic

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// qdrantSink wraps the gRPC Points/Collections clients needed to upsert one
// vector per finalized document. It never searches or reads points back.
type qdrantSink struct {
	points      qdrant.PointsClient
	collections qdrant.CollectionsClient
	conn        *grpc.ClientConn
	collection  string
}

func newQdrantSink(address, collection string) (*qdrantSink, error) {
	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: connect qdrant: %w", err)
	}
	s := &qdrantSink{
		points:      qdrant.NewPointsClient(conn),
		collections: qdrant.NewCollectionsClient(conn),
		conn:        conn,
		collection:  collection,
	}
	if err := s.ensureCollection(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *qdrantSink) Close() error { return s.conn.Close() }

func (s *qdrantSink) ensureCollection(ctx context.Context) error {
	list, err := s.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.Collections {
		if c.Name == s.collection {
			return nil
		}
	}
	_, err = s.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     embeddingDims,
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection: %w", err)
	}
	return nil
}

// upsert writes one document's embedding, keyed by a deterministic UUID
// derived from the document ID so re-indexing the same document overwrites
// rather than duplicates the point.
func (s *qdrantSink) upsert(ctx context.Context, docID string, vector []float32, payload map[string]*qdrant.Value) error {
	pointID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(docID)).String()
	point := &qdrant.PointStruct{
		Id: &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: pointID}},
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: vector}},
		},
		Payload: payload,
	}
	_, err := s.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert vector for %s: %w", docID, err)
	}
	return nil
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}
