// Package qdrant implements the vector store port against a Qdrant
// instance over gRPC.
package qdrant

import (
	"context"
	"encoding/json"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/aitzol/tilescout/internal/core/domain"
)

// Store talks to Qdrant's collections and points services. Collections
// are session-scoped: one per ingested region, deleted after search.
type Store struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
}

// New dials Qdrant.
func New(host string, port int) (*Store, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &Store{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
	}, nil
}

// CreateCollection provisions a cosine-metric collection of the given
// dimensionality.
func (s *Store) CreateCollection(ctx context.Context, name string, dims int) error {
	_, err := s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
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
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

// Upsert writes records keyed by their numeric ids. Tile metadata rides
// along as payload so search results never recompute geometry.
func (s *Store) Upsert(ctx context.Context, collection string, records []domain.EmbeddingRecord) error {
	points := make([]*pb.PointStruct, len(records))
	for i, rec := range records {
		tileJSON, err := json.Marshal(rec.Tile)
		if err != nil {
			return fmt.Errorf("encode tile payload: %w", err)
		}
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: rec.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{Data: rec.Vector},
			}},
			Payload: map[string]*pb.Value{
				"tile":    {Kind: &pb.Value_StringValue{StringValue: string(tileJSON)}},
				"caption": {Kind: &pb.Value_StringValue{StringValue: rec.Caption}},
			},
		}
	}

	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert %d points into %s: %w", len(points), collection, err)
	}
	return nil
}

// Scroll pages through a collection following Qdrant's continuation
// offset. A nil returned cursor means the collection is exhausted.
func (s *Store) Scroll(ctx context.Context, collection string, limit int, offset *uint64) ([]domain.EmbeddingRecord, *uint64, error) {
	lim := uint32(limit)
	req := &pb.ScrollPoints{
		CollectionName: collection,
		Limit:          &lim,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
	}
	if offset != nil {
		req.Offset = &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: *offset}}
	}

	resp, err := s.points.Scroll(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("scroll %s: %w", collection, err)
	}

	records := make([]domain.EmbeddingRecord, 0, len(resp.Result))
	for _, pt := range resp.Result {
		rec := domain.EmbeddingRecord{ID: pt.Id.GetNum()}
		if v := pt.Vectors.GetVector(); v != nil {
			rec.Vector = v.Data
		}
		if raw := pt.Payload["tile"].GetStringValue(); raw != "" {
			if err := json.Unmarshal([]byte(raw), &rec.Tile); err != nil {
				return nil, nil, fmt.Errorf("decode tile payload: %w", err)
			}
		}
		rec.Caption = pt.Payload["caption"].GetStringValue()
		records = append(records, rec)
	}

	var next *uint64
	if resp.NextPageOffset != nil {
		n := resp.NextPageOffset.GetNum()
		next = &n
	}
	return records, next, nil
}

// DeleteCollection drops a session collection. Dropping a collection
// that is already gone is not an error worth surfacing.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	_, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name})
	if err != nil {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	return nil
}

// Close tears down the gRPC connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
