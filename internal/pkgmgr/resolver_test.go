package pkgmgr

import (
	"context"
	"testing"
)

type fakeIndex map[string][]IndexEntry

func (f fakeIndex) Index(ctx context.Context, pkgID string) ([]IndexEntry, error) {
	return f[pkgID], nil
}

func TestResolvePicksHighestSatisfyingVersion(t *testing.T) {
	idx := fakeIndex{
		"x07:core": {
			{Pkg: "x07:core", Vers: "1.0.0", Cksum: "a"},
			{Pkg: "x07:core", Vers: "1.2.0", Cksum: "b"},
			{Pkg: "x07:core", Vers: "2.0.0", Cksum: "c"},
		},
	}
	sel, err := Resolve(context.Background(), idx, map[string]string{"x07:core": "^1.0.0"}, nil, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if sel.Selected["x07:core"] != "1.2.0" {
		t.Errorf("Selected[x07:core] = %q, want %q", sel.Selected["x07:core"], "1.2.0")
	}
}

func TestResolveWalksTransitiveDeps(t *testing.T) {
	idx := fakeIndex{
		"x07:app": {
			{Pkg: "x07:app", Vers: "1.0.0", Cksum: "a", Deps: []IndexDepEdge{
				{Pkg: "x07:core", Req: "^1.0.0"},
			}},
		},
		"x07:core": {
			{Pkg: "x07:core", Vers: "1.3.0", Cksum: "b"},
		},
	}
	sel, err := Resolve(context.Background(), idx, map[string]string{"x07:app": "^1.0.0"}, nil, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if sel.Selected["x07:core"] != "1.3.0" {
		t.Errorf("Selected[x07:core] = %q, want %q", sel.Selected["x07:core"], "1.3.0")
	}
	if got := sel.Edges["x07:app"]; len(got) != 1 || got[0] != "x07:core" {
		t.Errorf("Edges[x07:app] = %v, want [x07:core]", got)
	}
}

func TestResolveSkipsOptionalDeps(t *testing.T) {
	idx := fakeIndex{
		"x07:app": {
			{Pkg: "x07:app", Vers: "1.0.0", Cksum: "a", Deps: []IndexDepEdge{
				{Pkg: "x07:extra", Req: "^1.0.0", Optional: true},
			}},
		},
	}
	sel, err := Resolve(context.Background(), idx, map[string]string{"x07:app": "^1.0.0"}, nil, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := sel.Selected["x07:extra"]; ok {
		t.Error("an optional dependency should not be resolved")
	}
}

func TestResolveSkipsYankedVersions(t *testing.T) {
	idx := fakeIndex{
		"x07:core": {
			{Pkg: "x07:core", Vers: "1.0.0", Cksum: "a"},
			{Pkg: "x07:core", Vers: "1.1.0", Cksum: "b", Yanked: true},
		},
	}
	sel, err := Resolve(context.Background(), idx, map[string]string{"x07:core": "^1.0.0"}, nil, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if sel.Selected["x07:core"] != "1.0.0" {
		t.Errorf("Selected[x07:core] = %q, want %q (yanked 1.1.0 should be skipped)", sel.Selected["x07:core"], "1.0.0")
	}
}

func TestResolveFailsWhenNoVersionSatisfiesAllConstraints(t *testing.T) {
	idx := fakeIndex{
		"x07:a": {
			{Pkg: "x07:a", Vers: "1.0.0", Cksum: "a", Deps: []IndexDepEdge{{Pkg: "x07:core", Req: "^1.0.0"}}},
		},
		"x07:b": {
			{Pkg: "x07:b", Vers: "1.0.0", Cksum: "b", Deps: []IndexDepEdge{{Pkg: "x07:core", Req: "^2.0.0"}}},
		},
		"x07:core": {
			{Pkg: "x07:core", Vers: "1.5.0", Cksum: "c"},
			{Pkg: "x07:core", Vers: "2.5.0", Cksum: "d"},
		},
	}
	_, err := Resolve(context.Background(), idx, map[string]string{"x07:a": "^1.0.0", "x07:b": "^1.0.0"}, nil, false)
	if err == nil {
		t.Fatal("expected a resolution failure: no single x07:core version satisfies both ^1.0.0 and ^2.0.0")
	}
}

func TestResolveHonorsLockedVersionEvenIfYanked(t *testing.T) {
	idx := fakeIndex{
		"x07:core": {
			{Pkg: "x07:core", Vers: "1.0.0", Cksum: "a", Yanked: true},
			{Pkg: "x07:core", Vers: "1.1.0", Cksum: "b"},
		},
	}
	sel, err := Resolve(context.Background(), idx, map[string]string{"x07:core": "^1.0.0"}, map[string]string{"x07:core": "1.0.0"}, true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if sel.Selected["x07:core"] != "1.0.0" {
		t.Errorf("Selected[x07:core] = %q, want locked %q", sel.Selected["x07:core"], "1.0.0")
	}
}
