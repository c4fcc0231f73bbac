// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

// LayerNode is one node of a page or component layer tree. Trees are small
// enough to store as a single JSON document per page per publish state.
type LayerNode struct {
	ID          string                       `json:"id"`
	Type        string                       `json:"type"`
	ComponentID string                       `json:"componentId,omitempty"`
	StyleIDs    []string                     `json:"styleIds,omitempty"`
	Classes     []string                     `json:"classes,omitempty"`
	Text        string                       `json:"text,omitempty"`
	Attributes  map[string]string            `json:"attributes,omitempty"`
	// Styles holds per-breakpoint design properties keyed by breakpoint name.
	Styles   map[string]map[string]string `json:"styles,omitempty"`
	Children []LayerNode                  `json:"children,omitempty"`
}

// LayerTreeContent is the content of one page's layer tree row.
type LayerTreeContent struct {
	PageID string      `json:"pageId"`
	Layers []LayerNode `json:"layers"`
}

// ComponentContent is a reusable named layer subtree, referenced by id from
// many layer trees.
type ComponentContent struct {
	Name   string      `json:"name"`
	Layers []LayerNode `json:"layers"`
}

// LayerStyleContent is a shared style: a class list plus per-breakpoint
// design properties.
type LayerStyleContent struct {
	Name    string                       `json:"name"`
	Classes []string                     `json:"classes,omitempty"`
	Design  map[string]map[string]string `json:"design,omitempty"`
}

// Refs lists the component and style ids referenced anywhere in a subtree.
type Refs struct {
	ComponentIDs []string
	StyleIDs     []string
}

// CollectRefs walks the nodes and gathers referenced component and style ids,
// deduplicated, in first-seen order.
func CollectRefs(nodes []LayerNode) Refs {
	var refs Refs
	seenComponent := make(map[string]bool)
	seenStyle := make(map[string]bool)
	var walk func(ns []LayerNode)
	walk = func(ns []LayerNode) {
		for i := range ns {
			n := &ns[i]
			if n.ComponentID != "" && !seenComponent[n.ComponentID] {
				seenComponent[n.ComponentID] = true
				refs.ComponentIDs = append(refs.ComponentIDs, n.ComponentID)
			}
			for _, sid := range n.StyleIDs {
				if !seenStyle[sid] {
					seenStyle[sid] = true
					refs.StyleIDs = append(refs.StyleIDs, sid)
				}
			}
			walk(n.Children)
		}
	}
	walk(nodes)
	return refs
}
