// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

// Kind identifies one publishable entity type. Every kind is stored as a
// dual-row table: the draft row and the published row share an id and are
// distinguished by the is_published flag.
type Kind string

const (
	KindPage        Kind = "page"
	KindLayerTree   Kind = "layer_tree"
	KindComponent   Kind = "component"
	KindLayerStyle  Kind = "layer_style"
	KindCollection  Kind = "collection"
	KindField       Kind = "collection_field"
	KindItem        Kind = "collection_item"
	KindItemValue   Kind = "item_value"
	KindTranslation Kind = "translation"
	KindAsset       Kind = "asset"
)

// ownershipEdges lists which kinds a parent owns. Owned children live and
// die with their parent: publishing cascades down these edges, deleting a
// parent removes its children. Components, styles, translations and assets
// are shared and owned by nobody.
var ownershipEdges = map[Kind][]Kind{
	KindPage:       {KindLayerTree},
	KindCollection: {KindField, KindItem},
	KindItem:       {KindItemValue},
}

var kinds = []Kind{
	KindPage,
	KindLayerTree,
	KindComponent,
	KindLayerStyle,
	KindCollection,
	KindField,
	KindItem,
	KindItemValue,
	KindTranslation,
	KindAsset,
}

// Kinds returns all publishable kinds in a stable order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

func (k Kind) Valid() bool {
	for _, known := range kinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k Kind) String() string { return string(k) }

// ChildKinds returns the kinds owned by a parent kind, or nil for leaves.
func ChildKinds(parent Kind) []Kind {
	return ownershipEdges[parent]
}

// ParentKind returns the owning kind, or "" for kinds without an owner.
func ParentKind(child Kind) Kind {
	for parent, children := range ownershipEdges {
		for _, c := range children {
			if c == child {
				return parent
			}
		}
	}
	return ""
}
