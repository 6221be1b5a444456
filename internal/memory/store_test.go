package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"

	"tradenerd/internal/embedding"
	"tradenerd/internal/types"
)

// stubEngine returns canned vectors keyed by text prefix. A text with
// no canned vector fails the embed, which the store must tolerate.
type stubEngine struct {
	vectors map[string][]float32
}

func (e *stubEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	for prefix, vec := range e.vectors {
		if len(text) >= len(prefix) && text[:len(prefix)] == prefix {
			return vec, nil
		}
	}
	return nil, fmt.Errorf("no vector for %q", text)
}

func (e *stubEngine) Dimensions() int { return 2 }
func (e *stubEngine) Name() string    { return "stub" }

func newTestStore(t *testing.T, engine *stubEngine) *Store {
	t.Helper()
	var eng embedding.Engine
	if engine != nil {
		eng = engine
	}
	s, err := NewStore(filepath.Join(t.TempDir(), "precedents.db"), eng)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWriteAndCount(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	id, err := s.Write(ctx, types.CollectionBull, "NVDA rallying on earnings", "momentum persists after beats")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if id < 1 {
		t.Errorf("Write returned id %d, want >= 1", id)
	}

	n, err := s.Count(ctx, types.CollectionBull)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
	if n, _ := s.Count(ctx, types.CollectionBear); n != 0 {
		t.Errorf("bear collection Count = %d, want 0", n)
	}
}

func TestWriteRejectsBadInput(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	if _, err := s.Write(ctx, "nonexistent", "situation", "lesson"); err == nil {
		t.Error("expected error for unknown collection")
	}
	if _, err := s.Write(ctx, types.CollectionBull, "", "lesson"); err == nil {
		t.Error("expected error for empty situation")
	}
	if _, err := s.Write(ctx, types.CollectionBull, "situation", ""); err == nil {
		t.Error("expected error for empty lesson")
	}
}

func TestWriteSurvivesEmbedFailure(t *testing.T) {
	engine := &stubEngine{vectors: map[string][]float32{"known": {1, 0}}}
	s := newTestStore(t, engine)
	ctx := context.Background()

	// The stub has no vector for this text; the write still lands.
	if _, err := s.Write(ctx, types.CollectionBull, "unembeddable situation", "lesson"); err != nil {
		t.Fatalf("Write with failing embed: %v", err)
	}

	records, err := s.loadCollection(ctx, types.CollectionBull)
	if err != nil {
		t.Fatalf("loadCollection: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Embedding != nil {
		t.Errorf("record with failed embed should have nil embedding, got %v", records[0].Embedding)
	}
}

func TestWriteStoresEmbedding(t *testing.T) {
	engine := &stubEngine{vectors: map[string][]float32{"known": {0.5, -1.25}}}
	s := newTestStore(t, engine)
	ctx := context.Background()

	if _, err := s.Write(ctx, types.CollectionBear, "known situation", "lesson"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	records, err := s.loadCollection(ctx, types.CollectionBear)
	if err != nil {
		t.Fatalf("loadCollection: %v", err)
	}
	if want := []float32{0.5, -1.25}; !reflect.DeepEqual(records[0].Embedding, want) {
		t.Errorf("Embedding = %v, want %v", records[0].Embedding, want)
	}
}

func TestLoadCollectionNewestFirst(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if _, err := s.Write(ctx, types.CollectionTrader, fmt.Sprintf("situation %d", i), "lesson"); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	records, err := s.loadCollection(ctx, types.CollectionTrader)
	if err != nil {
		t.Fatalf("loadCollection: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i-1].ID <= records[i].ID {
			t.Errorf("records not newest first: id %d before id %d", records[i-1].ID, records[i].ID)
		}
	}
}

func TestVectorCodecRoundTrip(t *testing.T) {
	cases := [][]float32{
		nil,
		{0},
		{1.5, -2.25, 3.125},
	}
	for _, vec := range cases {
		got := decodeVector(encodeVector(vec))
		if len(vec) == 0 {
			if got != nil {
				t.Errorf("decode(encode(%v)) = %v, want nil", vec, got)
			}
			continue
		}
		if !reflect.DeepEqual(got, vec) {
			t.Errorf("decode(encode(%v)) = %v", vec, got)
		}
	}

	if decodeVector([]byte{1, 2, 3}) != nil {
		t.Error("decodeVector should reject blobs not divisible by 4")
	}
}
