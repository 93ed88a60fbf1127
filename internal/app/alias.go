package app

import (
	"context"
	"fmt"
	"sort"

	"github.com/knots/knots/internal/idgen"
	"github.com/knots/knots/internal/types"
)

// aliasMap computes the hierarchical alias (spec.md §4.12, grounded on
// original_source/src/hierarchy_alias.rs) for every knot currently in the
// hot tier: a knot with no incoming parent_of edge is a root and keeps its
// display id as its alias; a child's alias is "<parent-alias>.<1-based
// index>", children ordered by created_at then id. Cycle members and
// unreachable knots keep their bare display id.
func (a *App) aliasMap(ctx context.Context) (map[string]string, error) {
	records, err := a.Cache.ListKnotHot(ctx)
	if err != nil {
		return nil, wrapDb(err)
	}

	ids := make([]string, 0, len(records))
	createdAt := make(map[string]string, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
		if rec.CreatedAt != nil {
			createdAt[rec.ID] = *rec.CreatedAt
		}
	}
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	// canonicalParent[child] = the lexicographically smallest valid parent,
	// matching build_alias_maps' "only the lex-smallest parent wins" rule
	// for a knot reachable through more than one parent_of edge.
	canonicalParent := make(map[string]string)
	for _, id := range ids {
		edges, err := a.Cache.ListEdges(ctx, id, types.EdgeOutgoing)
		if err != nil {
			return nil, wrapDb(err)
		}
		for _, e := range edges {
			if e.Kind != "parent_of" || e.Src == e.Dst {
				continue
			}
			if !idSet[e.Src] || !idSet[e.Dst] {
				continue
			}
			if existing, ok := canonicalParent[e.Dst]; !ok || e.Src < existing {
				canonicalParent[e.Dst] = e.Src
			}
		}
	}

	childrenByParent := make(map[string][]string)
	for child, parent := range canonicalParent {
		childrenByParent[parent] = append(childrenByParent[parent], child)
	}
	for parent, children := range childrenByParent {
		sort.Slice(children, func(i, j int) bool {
			ci, cj := createdAt[children[i]], createdAt[children[j]]
			if ci != cj {
				return ci < cj
			}
			return children[i] < children[j]
		})
		childrenByParent[parent] = children
	}

	var roots []string
	for _, id := range ids {
		if _, hasParent := canonicalParent[id]; !hasParent {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)

	aliases := make(map[string]string, len(ids))
	visited := make(map[string]bool, len(ids))
	for _, root := range roots {
		assignAlias(root, idgen.DisplayID(root), childrenByParent, visited, aliases)
	}
	for _, id := range sortedCopy(ids) {
		if !visited[id] {
			assignAlias(id, idgen.DisplayID(id), childrenByParent, visited, aliases)
		}
	}

	return aliases, nil
}

func assignAlias(id, alias string, childrenByParent map[string][]string, visited map[string]bool, aliases map[string]string) {
	if visited[id] {
		return
	}
	visited[id] = true
	aliases[id] = alias

	for idx, child := range childrenByParent[id] {
		assignAlias(child, fmt.Sprintf("%s.%d", alias, idx+1), childrenByParent, visited, aliases)
	}
}

// TreeNode pairs a knot view with its pre-order depth, for
// ListKnotsTree's indentation contract (spec.md §4.13).
type TreeNode struct {
	Knot  KnotView
	Depth int
}

// ListKnotsTree implements SPEC_FULL.md §4.13: a pre-order walk of the
// same parent_of adjacency aliasMap uses, returning (knot, depth) pairs so
// a caller can indent. This is additive; list_knots()'s flat contract is
// unchanged.
func (a *App) ListKnotsTree(ctx context.Context) ([]TreeNode, error) {
	records, err := a.Cache.ListKnotHot(ctx)
	if err != nil {
		return nil, wrapDb(err)
	}
	byID := make(map[string]KnotView, len(records))
	ids := make([]string, 0, len(records))
	createdAt := make(map[string]string, len(records))
	for _, rec := range records {
		view := viewFromRecord(rec)
		byID[rec.ID] = view
		ids = append(ids, rec.ID)
		if rec.CreatedAt != nil {
			createdAt[rec.ID] = *rec.CreatedAt
		}
	}

	aliases, err := a.aliasMap(ctx)
	if err != nil {
		return nil, err
	}
	for id, view := range byID {
		view.HierarchicalAlias = aliases[id]
		byID[id] = view
	}

	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	canonicalParent := make(map[string]string)
	childrenByParent := make(map[string][]string)
	for _, id := range ids {
		edges, err := a.Cache.ListEdges(ctx, id, types.EdgeOutgoing)
		if err != nil {
			return nil, wrapDb(err)
		}
		for _, e := range edges {
			if e.Kind != "parent_of" || e.Src == e.Dst || !idSet[e.Src] || !idSet[e.Dst] {
				continue
			}
			if existing, ok := canonicalParent[e.Dst]; !ok || e.Src < existing {
				canonicalParent[e.Dst] = e.Src
			}
		}
	}
	for child, parent := range canonicalParent {
		childrenByParent[parent] = append(childrenByParent[parent], child)
	}
	for parent, children := range childrenByParent {
		sort.Slice(children, func(i, j int) bool {
			ci, cj := createdAt[children[i]], createdAt[children[j]]
			if ci != cj {
				return ci < cj
			}
			return children[i] < children[j]
		})
		childrenByParent[parent] = children
	}

	var roots []string
	for _, id := range ids {
		if _, hasParent := canonicalParent[id]; !hasParent {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)

	var out []TreeNode
	visited := make(map[string]bool, len(ids))
	var walk func(id string, depth int)
	walk = func(id string, depth int) {
		if visited[id] {
			return
		}
		visited[id] = true
		out = append(out, TreeNode{Knot: byID[id], Depth: depth})
		for _, child := range childrenByParent[id] {
			walk(child, depth+1)
		}
	}
	for _, root := range roots {
		walk(root, 0)
	}
	for _, id := range sortedCopy(ids) {
		if !visited[id] {
			walk(id, 0)
		}
	}

	return out, nil
}
