package turnstate

import "fmt"

// AppendLineageEdge records that parentID produced childID via op, for
// artifacts of the given kind. It rejects an edge that would close a cycle
// (I4): childID must not already be an ancestor of parentID.
func AppendLineageEdge(mem *ArtifactMemory, kind AttachmentKind, edge LineageEdge) error {
	if mem.Lineage == nil {
		mem.Lineage = map[AttachmentKind][]LineageEdge{}
	}
	if edge.ParentID == edge.ChildID {
		return fmt.Errorf("lineage: self-referential edge %s->%s", edge.ParentID, edge.ChildID)
	}
	if isAncestor(mem.Lineage[kind], edge.ChildID, edge.ParentID) {
		return fmt.Errorf("lineage: edge %s->%s would close a cycle", edge.ParentID, edge.ChildID)
	}
	mem.Lineage[kind] = append(mem.Lineage[kind], edge)
	return nil
}

// isAncestor reports whether candidate appears anywhere in of's ancestor
// chain within edges, walking parent pointers breadth-first.
func isAncestor(edges []LineageEdge, candidate, of string) bool {
	byChild := make(map[string][]string, len(edges))
	for _, e := range edges {
		byChild[e.ChildID] = append(byChild[e.ChildID], e.ParentID)
	}
	frontier := []string{of}
	visited := map[string]struct{}{of: {}}
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		if next == candidate {
			return true
		}
		for _, parent := range byChild[next] {
			if _, ok := visited[parent]; ok {
				continue
			}
			visited[parent] = struct{}{}
			frontier = append(frontier, parent)
		}
	}
	return false
}

// Chain returns the full ancestor chain for id, nearest-first.
func Chain(mem ArtifactMemory, kind AttachmentKind, id string) []LineageEdge {
	byChild := make(map[string]LineageEdge, len(mem.Lineage[kind]))
	for _, e := range mem.Lineage[kind] {
		byChild[e.ChildID] = e
	}
	var chain []LineageEdge
	cur := id
	for {
		e, ok := byChild[cur]
		if !ok {
			break
		}
		chain = append(chain, e)
		cur = e.ParentID
	}
	return chain
}
