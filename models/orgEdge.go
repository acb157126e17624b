package models

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/trend4media/billing_backend/config"
	"github.com/trend4media/billing_backend/utils"
	"gorm.io/gorm"
)

// OrgEdge is a direct parent -> child link between two managers. ValidTo nil means active;
// edges are closed by setting ValidTo and are never physically removed.
type OrgEdge struct {
	ID        int        `gorm:"primary_key" json:"id"`
	ParentId  int        `gorm:"not null;index" json:"parent_id"`
	ChildId   int        `gorm:"not null;index" json:"child_id"`
	ValidFrom time.Time  `gorm:"not null" json:"valid_from"`
	ValidTo   *time.Time `gorm:"index" json:"valid_to"`
	CreatedBy *int       `json:"created_by"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e OrgEdge) IsActive() bool {
	return e.ValidTo == nil
}

type NewOrgEdge struct {
	ParentId int `json:"parent_id" validate:"required,gt=0"`
	ChildId  int `json:"child_id" validate:"required,gt=0"`
}

// OrgTreeNode is one manager in the admin hierarchy view.
type OrgTreeNode struct {
	Id       int            `json:"id"`
	Name     string         `json:"name"`
	Role     UserRole       `json:"role"`
	IsActive bool           `json:"is_active"`
	EdgeId   *int           `json:"edge_id,omitempty"`
	Children []*OrgTreeNode `json:"children"`
}

// ParentMap returns child -> parent for active edges.
func ParentMap(edges []*OrgEdge) map[int]int {
	parentOf := make(map[int]int, len(edges))
	for _, e := range edges {
		if e.IsActive() {
			parentOf[e.ChildId] = e.ParentId
		}
	}
	return parentOf
}

// CreatesCycle reports whether linking parentId -> childId would close a loop, by walking
// the parent's chain of active parents. With at most one parent per child the ancestry is
// a chain, so the walk is linear and has no depth cap.
func CreatesCycle(parentOf map[int]int, parentId int, childId int) bool {
	if parentId == childId {
		return true
	}
	seen := map[int]bool{}
	for cur := parentId; ; {
		if cur == childId {
			return true
		}
		if seen[cur] {
			return false
		}
		seen[cur] = true
		next, ok := parentOf[cur]
		if !ok {
			return false
		}
		cur = next
	}
}

func ListActiveOrgEdges(ctx context.Context) ([]*OrgEdge, error) {
	return ListActiveOrgEdgesTx(config.GetDB().WithContext(ctx))
}

func ListActiveOrgEdgesTx(tx *gorm.DB) ([]*OrgEdge, error) {
	var results []*OrgEdge
	if err := tx.Where("valid_to IS NULL").Order("parent_id, child_id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ListOrgEdges returns every edge, closed ones included, newest first.
func ListOrgEdges(ctx context.Context) ([]*OrgEdge, error) {
	var results []*OrgEdge
	if err := config.GetDB().WithContext(ctx).Order("id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func GetOrgEdgeTx(tx *gorm.DB, edgeId int) (*OrgEdge, error) {
	var edge OrgEdge
	if err := tx.Where("id = ?", edgeId).Take(&edge).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("edge", edgeId)
		}
		return nil, err
	}
	return &edge, nil
}

// BuildOrgTree nests managers under their active parents. Roots are active managers
// without an active parent; children are ordered by id.
func BuildOrgTree(managers []*User, edges []*OrgEdge) []*OrgTreeNode {
	nodes := make(map[int]*OrgTreeNode, len(managers))
	for _, m := range managers {
		nodes[m.ID] = &OrgTreeNode{
			Id:       m.ID,
			Name:     m.Name,
			Role:     m.Role,
			IsActive: m.Active(),
			Children: []*OrgTreeNode{},
		}
	}

	hasParent := map[int]bool{}
	for _, e := range edges {
		if !e.IsActive() {
			continue
		}
		parent, okP := nodes[e.ParentId]
		child, okC := nodes[e.ChildId]
		if !okP || !okC {
			continue
		}
		edgeId := e.ID
		child.EdgeId = &edgeId
		parent.Children = append(parent.Children, child)
		hasParent[e.ChildId] = true
	}

	roots := make([]*OrgTreeNode, 0)
	for _, m := range managers {
		if m.Active() && !hasParent[m.ID] {
			roots = append(roots, nodes[m.ID])
		}
	}
	for _, n := range nodes {
		sort.Slice(n.Children, func(i, j int) bool { return n.Children[i].Id < n.Children[j].Id })
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].Id < roots[j].Id })
	return roots
}

func GetOrgTree(ctx context.Context) ([]*OrgTreeNode, error) {
	managers, err := ListManagers(ctx, false)
	if err != nil {
		return nil, err
	}
	edges, err := ListActiveOrgEdges(ctx)
	if err != nil {
		return nil, err
	}
	return BuildOrgTree(managers, edges), nil
}
