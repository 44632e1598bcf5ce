package search

import (
	"testing"

	"gamereview/searchservice/internal/domain"
)

func TestDedupeRemovesExternalIDDuplicates(t *testing.T) {
	out := dedupe([]domain.Game{
		{ExternalID: 7, Name: "Celeste", Source: domain.SourceCatalog},
		{ExternalID: 7, Name: "Celeste", Source: domain.SourceExternal},
	})
	if len(out) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out))
	}
	if out[0].Source != domain.SourceCatalog {
		t.Fatalf("expected catalog copy to survive, got %q", out[0].Source)
	}
}

func TestDedupeCatalogWinsRegardlessOfOrder(t *testing.T) {
	out := dedupe([]domain.Game{
		{ExternalID: 7, Name: "Celeste", Source: domain.SourceExternal, Summary: "provider copy"},
		{ExternalID: 7, Name: "Celeste", Source: domain.SourceCatalog, Summary: "catalog copy"},
	})
	if len(out) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out))
	}
	if out[0].Summary != "catalog copy" {
		t.Fatalf("expected catalog copy to replace external one, got %q", out[0].Summary)
	}
}

func TestDedupeNameFallbackWhenCatalogLacksExternalID(t *testing.T) {
	out := dedupe([]domain.Game{
		{Name: "Stardew Valley", Source: domain.SourceCatalog},
		{ExternalID: 42, Name: "Stardew  Valley!", Source: domain.SourceExternal},
	})
	if len(out) != 1 {
		t.Fatalf("expected name-based merge, got %d results", len(out))
	}
	if out[0].Source != domain.SourceCatalog {
		t.Fatalf("expected catalog copy to survive the name merge, got %q", out[0].Source)
	}
}

func TestDedupeKeepsDistinctExternalIDsSharingAName(t *testing.T) {
	out := dedupe([]domain.Game{
		{ExternalID: 333, Name: "Doom", Source: domain.SourceCatalog},
		{ExternalID: 7351, Name: "Doom", Source: domain.SourceExternal},
	})
	if len(out) != 2 {
		t.Fatalf("expected 2 distinct games, got %d", len(out))
	}
	if out[0].ExternalID != 333 || out[1].ExternalID != 7351 {
		t.Fatalf("unexpected merge or reorder: %+v", out)
	}
}

func TestDedupePreservesFirstSeenOrder(t *testing.T) {
	out := dedupe([]domain.Game{
		{ExternalID: 1, Name: "Alpha", Source: domain.SourceCatalog},
		{ExternalID: 2, Name: "Beta", Source: domain.SourceCatalog},
		{ExternalID: 1, Name: "Alpha", Source: domain.SourceExternal},
		{ExternalID: 3, Name: "Gamma", Source: domain.SourceExternal},
	})
	want := []string{"Alpha", "Beta", "Gamma"}
	if len(out) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(out))
	}
	for i, name := range want {
		if out[i].Name != name {
			t.Errorf("position %d: got %q, want %q", i, out[i].Name, name)
		}
	}
}

func TestDedupeSkipsUnidentifiableEntries(t *testing.T) {
	out := dedupe([]domain.Game{
		{Name: "   ", Source: domain.SourceExternal},
		{Name: "Real Game", Source: domain.SourceCatalog},
	})
	if len(out) != 1 || out[0].Name != "Real Game" {
		t.Fatalf("expected only the identifiable entry, got %v", out)
	}
}
