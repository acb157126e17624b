package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trend4media/billing_backend/config"
	"github.com/trend4media/billing_backend/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const DefaultRuleSetId = "default-rules-2024"

type FixedBonuses struct {
	M0_5        decimal.Decimal `json:"m0_5"`
	M1          decimal.Decimal `json:"m1"`
	M1Retention decimal.Decimal `json:"m1_retention"`
	M2          decimal.Decimal `json:"m2"`
}

// RoleRates is the personal-commission table shared by both manager roles.
type RoleRates struct {
	BaseCommission     decimal.Decimal `json:"baseCommission"`
	ActivityCommission decimal.Decimal `json:"activityCommission"`
	FixedBonuses       FixedBonuses    `json:"fixedBonuses"`
}

type DownlineRates struct {
	LevelA decimal.Decimal `json:"levelA"`
	LevelB decimal.Decimal `json:"levelB"`
	LevelC decimal.Decimal `json:"levelC"`
}

// ForDepth returns the rate paid on a descendant at closure depth 1, 2 or 3.
func (d DownlineRates) ForDepth(depth int) (decimal.Decimal, bool) {
	switch depth {
	case 1:
		return d.LevelA, true
	case 2:
		return d.LevelB, true
	case 3:
		return d.LevelC, true
	}
	return decimal.Zero, false
}

type TeamBonus struct {
	Rate        decimal.Decimal `json:"rate"`
	Recruitment decimal.Decimal `json:"recruitment"`
	Graduation  decimal.Decimal `json:"graduation"`
}

type TeamLeaderRates struct {
	RoleRates
	DownlineRates DownlineRates `json:"downlineRates"`
	TeamBonus     TeamBonus     `json:"teamBonus"`
}

type TeamTargets struct {
	MinTeamRevenue decimal.Decimal `json:"minTeamRevenue"`
}

// CommissionRules is the JSON document stored on a rule set.
type CommissionRules struct {
	SalesRep    RoleRates       `json:"salesRep"`
	TeamLeader  TeamLeaderRates `json:"teamLeader"`
	TeamTargets TeamTargets     `json:"teamTargets"`
}

// ForRole returns the personal rate table for a manager role.
func (r CommissionRules) ForRole(role UserRole) RoleRates {
	if role == UserRoleTeamLeader {
		return r.TeamLeader.RoleRates
	}
	return r.SalesRep
}

// Validate rejects negative values and rates above 100%.
func (r CommissionRules) Validate() error {
	one := decimal.NewFromInt(1)
	rates := map[string]decimal.Decimal{
		"salesRep.baseCommission":         r.SalesRep.BaseCommission,
		"salesRep.activityCommission":     r.SalesRep.ActivityCommission,
		"teamLeader.baseCommission":       r.TeamLeader.BaseCommission,
		"teamLeader.activityCommission":   r.TeamLeader.ActivityCommission,
		"teamLeader.downlineRates.levelA": r.TeamLeader.DownlineRates.LevelA,
		"teamLeader.downlineRates.levelB": r.TeamLeader.DownlineRates.LevelB,
		"teamLeader.downlineRates.levelC": r.TeamLeader.DownlineRates.LevelC,
		"teamLeader.teamBonus.rate":       r.TeamLeader.TeamBonus.Rate,
	}
	amounts := map[string]decimal.Decimal{
		"salesRep.fixedBonuses.m0_5":           r.SalesRep.FixedBonuses.M0_5,
		"salesRep.fixedBonuses.m1":             r.SalesRep.FixedBonuses.M1,
		"salesRep.fixedBonuses.m1_retention":   r.SalesRep.FixedBonuses.M1Retention,
		"salesRep.fixedBonuses.m2":             r.SalesRep.FixedBonuses.M2,
		"teamLeader.fixedBonuses.m0_5":         r.TeamLeader.FixedBonuses.M0_5,
		"teamLeader.fixedBonuses.m1":           r.TeamLeader.FixedBonuses.M1,
		"teamLeader.fixedBonuses.m1_retention": r.TeamLeader.FixedBonuses.M1Retention,
		"teamLeader.fixedBonuses.m2":           r.TeamLeader.FixedBonuses.M2,
		"teamLeader.teamBonus.recruitment":     r.TeamLeader.TeamBonus.Recruitment,
		"teamLeader.teamBonus.graduation":      r.TeamLeader.TeamBonus.Graduation,
		"teamTargets.minTeamRevenue":           r.TeamTargets.MinTeamRevenue,
	}

	var problems []string
	for name, v := range rates {
		if v.IsNegative() || v.GreaterThan(one) {
			problems = append(problems, fmt.Sprintf("%s must be between 0 and 1", name))
		}
	}
	for name, v := range amounts {
		if v.IsNegative() {
			problems = append(problems, fmt.Sprintf("%s cannot be negative", name))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return utils.NewValidationError("invalid rules: %s", strings.Join(problems, "; "))
	}
	return nil
}

// DefaultCommissionRules is the shipped 2024 plan.
func DefaultCommissionRules() CommissionRules {
	d := decimal.RequireFromString
	return CommissionRules{
		SalesRep: RoleRates{
			BaseCommission:     d("0.30"),
			ActivityCommission: d("0.30"),
			FixedBonuses: FixedBonuses{
				M0_5:        d("75"),
				M1:          d("150"),
				M1Retention: d("100"),
				M2:          d("400"),
			},
		},
		TeamLeader: TeamLeaderRates{
			RoleRates: RoleRates{
				BaseCommission:     d("0.35"),
				ActivityCommission: d("0.35"),
				FixedBonuses: FixedBonuses{
					M0_5:        d("80"),
					M1:          d("165"),
					M1Retention: d("120"),
					M2:          d("450"),
				},
			},
			DownlineRates: DownlineRates{
				LevelA: d("0.10"),
				LevelB: d("0.075"),
				LevelC: d("0.05"),
			},
			TeamBonus: TeamBonus{
				Rate:        d("0.10"),
				Recruitment: d("50"),
				Graduation:  d("50"),
			},
		},
		TeamTargets: TeamTargets{
			MinTeamRevenue: d("10000"),
		},
	}
}

// RuleSet is a versioned, time-activated commission plan. New plans are new rows.
type RuleSet struct {
	ID         string                              `gorm:"primary_key;size:64" json:"id"`
	Name       string                              `gorm:"size:150;not null" json:"name"`
	Rules      datatypes.JSONType[CommissionRules] `gorm:"not null" json:"rules"`
	ActiveFrom time.Time                           `gorm:"not null;index" json:"active_from"`
	IsActive   bool                                `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time                           `gorm:"autoCreateTime" json:"created_at"`
}

type NewRuleSet struct {
	Id         string          `json:"id" validate:"required,max=64"`
	Name       string          `json:"name" validate:"required,max=150"`
	Rules      CommissionRules `json:"rules"`
	ActiveFrom time.Time       `json:"active_from" validate:"required"`
	IsActive   *bool           `json:"is_active"`
}

func CreateRuleSet(ctx context.Context, input *NewRuleSet) (*RuleSet, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if err := input.Rules.Validate(); err != nil {
		return nil, err
	}

	ruleSet := RuleSet{
		ID:         strings.TrimSpace(input.Id),
		Name:       strings.TrimSpace(input.Name),
		Rules:      datatypes.NewJSONType(input.Rules),
		ActiveFrom: input.ActiveFrom.UTC(),
		IsActive:   utils.DereferencePtr(input.IsActive, true),
	}
	if err := config.GetDB().WithContext(ctx).Create(&ruleSet).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return nil, utils.NewValidationError("rule set %s already exists", ruleSet.ID)
		}
		return nil, err
	}
	return &ruleSet, nil
}

// SetRuleSetActive toggles a rule set. Rules themselves are never edited.
func SetRuleSetActive(ctx context.Context, id string, isActive bool) (*RuleSet, error) {
	db := config.GetDB().WithContext(ctx)
	var ruleSet RuleSet
	if err := db.Where("id = ?", id).Take(&ruleSet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("rule set", id)
		}
		return nil, err
	}
	if err := db.Model(&ruleSet).Update("is_active", isActive).Error; err != nil {
		return nil, err
	}
	ruleSet.IsActive = isActive
	return &ruleSet, nil
}

func ListRuleSets(ctx context.Context) ([]*RuleSet, error) {
	var results []*RuleSet
	if err := config.GetDB().WithContext(ctx).Order("active_from DESC, id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetActiveRuleSet returns the most recently activated rule set in effect at asOf.
func GetActiveRuleSet(ctx context.Context, asOf time.Time) (*RuleSet, error) {
	return GetActiveRuleSetTx(config.GetDB().WithContext(ctx), asOf)
}

func GetActiveRuleSetTx(tx *gorm.DB, asOf time.Time) (*RuleSet, error) {
	var ruleSet RuleSet
	err := tx.Where("is_active = ? AND active_from <= ?", true, asOf).
		Order("active_from DESC, created_at DESC").
		Take(&ruleSet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewConfigurationError("no active rule set found")
		}
		return nil, err
	}
	return &ruleSet, nil
}

// EnsureDefaultRuleSet seeds the shipped plan when it does not exist yet.
func EnsureDefaultRuleSet(ctx context.Context) (*RuleSet, bool, error) {
	db := config.GetDB().WithContext(ctx)
	var existing RuleSet
	err := db.Where("id = ?", DefaultRuleSetId).Take(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	ruleSet := RuleSet{
		ID:         DefaultRuleSetId,
		Name:       "Default Commission Rules 2024",
		Rules:      datatypes.NewJSONType(DefaultCommissionRules()),
		ActiveFrom: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		IsActive:   true,
	}
	if err := db.Create(&ruleSet).Error; err != nil {
		return nil, false, err
	}
	return &ruleSet, true, nil
}
