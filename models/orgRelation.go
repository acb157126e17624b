package models

import (
	"context"
	"sort"
	"time"

	"github.com/trend4media/billing_backend/config"
	"gorm.io/gorm"
)

// MaxOrgDepth is the deepest level that earns downline commission (A, B, C).
const MaxOrgDepth = 3

// OrgRelation is the materialized ancestor/descendant closure, derived from active
// edges and rebuilt wholesale after each structural change.
type OrgRelation struct {
	ID           int       `gorm:"primary_key" json:"id"`
	AncestorId   int       `gorm:"not null;uniqueIndex:idx_org_relation_pair;index:idx_org_relation_ancestor" json:"ancestor_id"`
	DescendantId int       `gorm:"not null;uniqueIndex:idx_org_relation_pair;index:idx_org_relation_descendant" json:"descendant_id"`
	Depth        int       `gorm:"not null" json:"depth"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// BuildOrgRelations runs a breadth-first walk from every root over the active edges,
// recording each reached manager once at its minimum depth, up to MaxOrgDepth.
// The output is sorted by ancestor, depth, descendant.
func BuildOrgRelations(edges []*OrgEdge, rootIds []int) []OrgRelation {
	children := map[int][]int{}
	for _, e := range edges {
		if e.IsActive() {
			children[e.ParentId] = append(children[e.ParentId], e.ChildId)
		}
	}
	for p := range children {
		sort.Ints(children[p])
	}

	roots := append([]int(nil), rootIds...)
	sort.Ints(roots)

	var relations []OrgRelation
	type queued struct {
		id    int
		depth int
	}
	for _, root := range roots {
		visited := map[int]bool{root: true}
		queue := []queued{{id: root, depth: 0}}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if cur.depth >= MaxOrgDepth {
				continue
			}
			for _, child := range children[cur.id] {
				if visited[child] {
					continue
				}
				visited[child] = true
				relations = append(relations, OrgRelation{
					AncestorId:   root,
					DescendantId: child,
					Depth:        cur.depth + 1,
				})
				queue = append(queue, queued{id: child, depth: cur.depth + 1})
			}
		}
	}
	// BFS already emits in depth order per root; keep ties by descendant id
	sort.SliceStable(relations, func(i, j int) bool {
		a, b := relations[i], relations[j]
		if a.AncestorId != b.AncestorId {
			return a.AncestorId < b.AncestorId
		}
		if a.Depth != b.Depth {
			return a.Depth < b.Depth
		}
		return a.DescendantId < b.DescendantId
	})
	return relations
}

// RebuildOrgRelations clears and regenerates the closure. Callers run it inside the
// transaction that changed the edges, holding the hierarchy lock.
func RebuildOrgRelations(tx *gorm.DB) error {
	if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&OrgRelation{}).Error; err != nil {
		return err
	}

	edges, err := ListActiveOrgEdgesTx(tx)
	if err != nil {
		return err
	}
	rootIds, err := activeManagerIdList(tx)
	if err != nil {
		return err
	}

	relations := BuildOrgRelations(edges, rootIds)
	if len(relations) == 0 {
		return nil
	}
	return tx.CreateInBatches(relations, 500).Error
}

func activeManagerIdList(tx *gorm.DB) ([]int, error) {
	var ids []int
	err := tx.Model(&User{}).
		Where("role IN ? AND is_active = ?", []UserRole{UserRoleTeamLeader, UserRoleSalesRep}, true).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// GetDownline lists (descendant, depth) rows of an ancestor ordered by depth then id.
func GetDownline(ctx context.Context, ancestorId int) ([]*OrgRelation, error) {
	var results []*OrgRelation
	if err := config.GetDB().WithContext(ctx).
		Where("ancestor_id = ? AND depth BETWEEN 1 AND ?", ancestorId, MaxOrgDepth).
		Order("depth, descendant_id").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ListOrgRelationsTx loads the whole closure; the engine reads it once per calculation.
func ListOrgRelationsTx(tx *gorm.DB) ([]*OrgRelation, error) {
	var results []*OrgRelation
	if err := tx.Where("depth BETWEEN 1 AND ?", MaxOrgDepth).
		Order("ancestor_id, depth, descendant_id").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// IsAncestorTx is the closure lookup used by the cycle check.
func IsAncestorTx(tx *gorm.DB, ancestorId int, descendantId int) (bool, error) {
	var count int64
	if err := tx.Model(&OrgRelation{}).
		Where("ancestor_id = ? AND descendant_id = ?", ancestorId, descendantId).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
