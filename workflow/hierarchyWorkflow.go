package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/trend4media/billing_backend/config"
	"github.com/trend4media/billing_backend/models"
	"github.com/trend4media/billing_backend/utils"
	"gorm.io/gorm"
)

// CreateOrgEdge links parent -> child and rebuilds the closure in the same transaction.
func CreateOrgEdge(ctx context.Context, input *models.NewOrgEdge) (*models.OrgEdge, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.ParentId == input.ChildId {
		return nil, utils.NewValidationError("a manager cannot be their own parent")
	}
	createdBy, _ := utils.GetUserIdFromContext(ctx)

	var edge models.OrgEdge
	err := models.HierarchyTransaction(ctx, func(tx *gorm.DB) error {
		parent, err := loadEdgeMember(tx, input.ParentId, "parent")
		if err != nil {
			return err
		}
		child, err := loadEdgeMember(tx, input.ChildId, "child")
		if err != nil {
			return err
		}
		if parent.Role != models.UserRoleTeamLeader {
			return utils.NewValidationError("parent must be a team leader")
		}
		if !child.Role.IsManager() {
			return utils.NewValidationError("child must be a team leader or sales rep")
		}

		edges, err := models.ListActiveOrgEdgesTx(tx)
		if err != nil {
			return err
		}
		for _, e := range edges {
			if e.ParentId == input.ParentId && e.ChildId == input.ChildId {
				return utils.NewValidationError("this relationship already exists")
			}
		}
		parentOf := models.ParentMap(edges)
		if _, ok := parentOf[input.ChildId]; ok {
			return utils.NewValidationError("manager %d already has an active parent", input.ChildId)
		}

		// closure first, then the parent chain for ancestry deeper than the closure keeps
		isAncestor, err := models.IsAncestorTx(tx, input.ChildId, input.ParentId)
		if err != nil {
			return err
		}
		if isAncestor || models.CreatesCycle(parentOf, input.ParentId, input.ChildId) {
			return utils.NewValidationError("this relationship would create a cycle")
		}

		edge = models.OrgEdge{
			ParentId:  input.ParentId,
			ChildId:   input.ChildId,
			ValidFrom: time.Now().UTC(),
		}
		if createdBy > 0 {
			edge.CreatedBy = &createdBy
		}
		if err := tx.Create(&edge).Error; err != nil {
			return err
		}
		return models.RebuildOrgRelations(tx)
	})
	if err != nil {
		return nil, err
	}

	changedBy, _ := utils.GetUsernameFromContext(ctx)
	config.GetLogger().WithFields(logrus.Fields{
		"edgeId":   edge.ID,
		"parentId": edge.ParentId,
		"childId":  edge.ChildId,
		"by":       changedBy,
	}).Info("hierarchy edge created")
	publishEvent(ctx, config.BillingEvent{
		Type:        EventHierarchyChanged,
		ReferenceId: edge.ID,
		Payload:     map[string]interface{}{"action": "created", "parentId": edge.ParentId, "childId": edge.ChildId},
	})
	return &edge, nil
}

// RemoveOrgEdge closes an active edge and rebuilds the closure.
func RemoveOrgEdge(ctx context.Context, edgeId int) (*models.OrgEdge, error) {
	var edge *models.OrgEdge
	err := models.HierarchyTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		edge, err = models.GetOrgEdgeTx(tx, edgeId)
		if err != nil {
			return err
		}
		if !edge.IsActive() {
			return utils.NewValidationError("edge %d is already inactive", edgeId)
		}

		now := time.Now().UTC()
		if err := tx.Model(edge).Update("valid_to", &now).Error; err != nil {
			return err
		}
		edge.ValidTo = &now
		return models.RebuildOrgRelations(tx)
	})
	if err != nil {
		return nil, err
	}

	changedBy, _ := utils.GetUsernameFromContext(ctx)
	config.GetLogger().WithFields(logrus.Fields{
		"edgeId":   edge.ID,
		"parentId": edge.ParentId,
		"childId":  edge.ChildId,
		"by":       changedBy,
	}).Info("hierarchy edge removed")
	publishEvent(ctx, config.BillingEvent{
		Type:        EventHierarchyChanged,
		ReferenceId: edge.ID,
		Payload:     map[string]interface{}{"action": "removed", "parentId": edge.ParentId, "childId": edge.ChildId},
	})
	return edge, nil
}

func loadEdgeMember(tx *gorm.DB, id int, label string) (*models.User, error) {
	var user models.User
	if err := tx.Where("id = ?", id).Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewValidationError("%s manager %d not found", label, id)
		}
		return nil, err
	}
	if !user.Active() {
		return nil, utils.NewValidationError("%s manager %d is inactive", label, id)
	}
	return &user, nil
}
