package memory

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tradenerd/internal/types"
)

func TestTokenize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{
			"drops short and common words",
			"The price of NVDA is up and the volume is high",
			[]string{"price", "nvda", "volume", "high"},
		},
		{
			"lowercases and deduplicates",
			"NVDA nvda Nvda earnings",
			[]string{"nvda", "earnings"},
		},
		{
			"splits on punctuation",
			"revenue-growth, margins; guidance!",
			[]string{"revenue", "growth", "margins", "guidance"},
		},
		{"empty", "", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tokenize(tc.in)
			if len(got) == 0 && len(tc.want) == 0 {
				return
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("tokenize(%q) mismatch (-want +got):\n%s", tc.in, diff)
			}
		})
	}
}

func TestKeywordScore(t *testing.T) {
	query := tokenize("NVDA earnings momentum")
	cases := []struct {
		name string
		text string
		want float64
	}{
		{"all present", "NVDA posted strong earnings, momentum building", 1.0},
		{"partial", "NVDA guidance disappointed", 1.0 / 3.0},
		{"none", "unrelated macro commentary", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := keywordScore(query, tc.text); got != tc.want {
				t.Errorf("keywordScore = %v, want %v", got, tc.want)
			}
		})
	}

	if keywordScore(nil, "anything") != 0 {
		t.Error("empty query must score 0")
	}
}

func TestRetrieveRanksByKeywordRelevance(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	seed := []struct{ situation, lesson string }{
		{"macro headwinds pressured semis broadly", "macro lesson"},
		{"NVDA earnings beat with raised guidance", "earnings lesson"},
		{"NVDA earnings miss on datacenter weakness", "miss lesson"},
	}
	for _, p := range seed {
		if _, err := s.Write(ctx, types.CollectionBull, p.situation, p.lesson); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	res, err := s.Retrieve(ctx, types.CollectionBull, "NVDA earnings guidance", 0, 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.Degraded {
		t.Error("alpha=0 retrieval must not report degraded")
	}
	if len(res.Matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(res.Matches))
	}
	if res.Matches[0].Record.Lesson != "earnings lesson" {
		t.Errorf("top match = %q, want the full keyword hit", res.Matches[0].Record.Lesson)
	}
	if res.Matches[0].Score <= res.Matches[1].Score {
		t.Errorf("matches not sorted by score: %v then %v", res.Matches[0].Score, res.Matches[1].Score)
	}
}

func TestRetrieveTiesBreakNewestFirst(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	// Identical situations score identically; the newer record wins.
	older, err := s.Write(ctx, types.CollectionBear, "NVDA overvalued on every multiple", "older lesson")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	newer, err := s.Write(ctx, types.CollectionBear, "NVDA overvalued on every multiple", "newer lesson")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	res, err := s.Retrieve(ctx, types.CollectionBear, "NVDA overvalued", 0, 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(res.Matches))
	}
	if res.Matches[0].Record.ID != newer || res.Matches[1].Record.ID != older {
		t.Errorf("tie order = [%d %d], want newest first [%d %d]",
			res.Matches[0].Record.ID, res.Matches[1].Record.ID, newer, older)
	}
}

func TestRetrieveDegradesWithoutEngine(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	if _, err := s.Write(ctx, types.CollectionTrader, "NVDA breakout above resistance", "ride the trend"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Semantic weight requested but no engine exists: the retrieval
	// degrades to keyword-only instead of failing.
	res, err := s.Retrieve(ctx, types.CollectionTrader, "NVDA breakout", 0.8, 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !res.Degraded {
		t.Error("expected Degraded=true with alpha>0 and no engine")
	}
	if len(res.Matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(res.Matches))
	}
	if m := res.Matches[0]; m.Semantic != 0 || m.Keyword == 0 || m.Score != m.Keyword {
		t.Errorf("degraded match must score keyword-only, got %+v", m)
	}
}

func TestRetrieveDegradesOnQueryEmbedFailure(t *testing.T) {
	engine := &stubEngine{vectors: map[string][]float32{"stored": {1, 0}}}
	s := newTestStore(t, engine)
	ctx := context.Background()

	if _, err := s.Write(ctx, types.CollectionBull, "stored situation about NVDA", "lesson"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// The stub cannot embed this query text.
	res, err := s.Retrieve(ctx, types.CollectionBull, "NVDA situation", 0.5, 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !res.Degraded {
		t.Error("expected Degraded=true when the query embedding fails")
	}
}

func TestRetrieveHybridBlending(t *testing.T) {
	engine := &stubEngine{vectors: map[string][]float32{
		"semantic": {1, 0}, // stored record, identical direction to the query
		"query":    {1, 0},
	}}
	s := newTestStore(t, engine)
	ctx := context.Background()

	// Shares the query's vector but none of its keywords.
	if _, err := s.Write(ctx, types.CollectionBull, "semantic precedent on chip demand", "semantic lesson"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	res, err := s.Retrieve(ctx, types.CollectionBull, "query about datacenter capex", 0.5, 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.Degraded {
		t.Fatal("retrieval should not degrade with a working engine")
	}
	m := res.Matches[0]
	if m.Semantic != 1.0 {
		t.Errorf("Semantic = %v, want 1.0 for identical vectors", m.Semantic)
	}
	want := 0.5*m.Semantic + 0.5*m.Keyword
	if m.Score != want {
		t.Errorf("Score = %v, want blended %v", m.Score, want)
	}
}

func TestRetrieveClampsInputs(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Write(ctx, types.CollectionRiskManager, "NVDA risk scenario", "lesson"); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	// limit < 1 clamps to 1; alpha outside [0,1] clamps to the range.
	res, err := s.Retrieve(ctx, types.CollectionRiskManager, "NVDA", -1, 0)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Matches) != 1 {
		t.Errorf("got %d matches, want clamped limit of 1", len(res.Matches))
	}
	if res.Degraded {
		t.Error("negative alpha clamps to 0 and must not report degraded")
	}
}

func TestRetrieveEmptyCollection(t *testing.T) {
	s := newTestStore(t, nil)
	res, err := s.Retrieve(context.Background(), types.CollectionBull, "anything", 0.5, 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Matches) != 0 || res.Degraded {
		t.Errorf("empty collection must yield an empty, non-degraded result, got %+v", res)
	}
}

func TestRetrieveCollectionIsolation(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	if _, err := s.Write(ctx, types.CollectionBull, "NVDA bull precedent", "bull lesson"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := s.Write(ctx, types.CollectionBear, "NVDA bear precedent", "bear lesson"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	res, err := s.Retrieve(ctx, types.CollectionBear, "NVDA precedent", 0, 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Matches) != 1 || res.Matches[0].Record.Lesson != "bear lesson" {
		t.Errorf("bear retrieval leaked across collections: %+v", res.Matches)
	}
}
