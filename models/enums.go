package models

type UserRole string

const (
	UserRoleTeamLeader UserRole = "TEAM_LEADER"
	UserRoleSalesRep   UserRole = "SALES_REP"
	UserRoleAdmin      UserRole = "ADMIN"
)

func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleTeamLeader, UserRoleSalesRep, UserRoleAdmin:
		return true
	}
	return false
}

// IsManager reports whether the role takes part in commission calculation.
func (r UserRole) IsManager() bool {
	return r == UserRoleTeamLeader || r == UserRoleSalesRep
}

type PeriodStatus string

const (
	PeriodStatusDraft  PeriodStatus = "DRAFT"
	PeriodStatusActive PeriodStatus = "ACTIVE"
	PeriodStatusLocked PeriodStatus = "LOCKED"
)

func (s PeriodStatus) IsValid() bool {
	switch s {
	case PeriodStatusDraft, PeriodStatusActive, PeriodStatusLocked:
		return true
	}
	return false
}

type RateSource string

const (
	RateSourcePrimary  RateSource = "PRIMARY"
	RateSourceBackup   RateSource = "BACKUP"
	RateSourceManual   RateSource = "MANUAL"
	RateSourceFallback RateSource = "FALLBACK"
)

func (s RateSource) IsValid() bool {
	switch s {
	case RateSourcePrimary, RateSourceBackup, RateSourceManual, RateSourceFallback:
		return true
	}
	return false
}

type ComponentType string

const (
	ComponentBaseCommission     ComponentType = "BASE_COMMISSION"
	ComponentActivityCommission ComponentType = "ACTIVITY_COMMISSION"
	ComponentM0_5Bonus          ComponentType = "M0_5_BONUS"
	ComponentM1Bonus            ComponentType = "M1_BONUS"
	ComponentM1RetentionBonus   ComponentType = "M1_RETENTION_BONUS"
	ComponentM2Bonus            ComponentType = "M2_BONUS"
	ComponentDownlineA          ComponentType = "DOWNLINE_A"
	ComponentDownlineB          ComponentType = "DOWNLINE_B"
	ComponentDownlineC          ComponentType = "DOWNLINE_C"
	ComponentTeamBonus          ComponentType = "TEAM_BONUS"
	ComponentTeamRecruitment    ComponentType = "TEAM_RECRUITMENT"
	ComponentTeamGraduation     ComponentType = "TEAM_GRADUATION"
)

// AllComponentTypes lists components in reporting order.
var AllComponentTypes = []ComponentType{
	ComponentBaseCommission,
	ComponentActivityCommission,
	ComponentM0_5Bonus,
	ComponentM1Bonus,
	ComponentM1RetentionBonus,
	ComponentM2Bonus,
	ComponentDownlineA,
	ComponentDownlineB,
	ComponentDownlineC,
	ComponentTeamBonus,
	ComponentTeamRecruitment,
	ComponentTeamGraduation,
}

// DownlineComponent maps a closure depth to its level component.
func DownlineComponent(depth int) (ComponentType, bool) {
	switch depth {
	case 1:
		return ComponentDownlineA, true
	case 2:
		return ComponentDownlineB, true
	case 3:
		return ComponentDownlineC, true
	}
	return "", false
}

// Group buckets components for dashboards: base, activity, bonus, downline, team.
func (c ComponentType) Group() string {
	switch c {
	case ComponentBaseCommission:
		return "base"
	case ComponentActivityCommission:
		return "activity"
	case ComponentM0_5Bonus, ComponentM1Bonus, ComponentM1RetentionBonus, ComponentM2Bonus:
		return "bonus"
	case ComponentDownlineA, ComponentDownlineB, ComponentDownlineC:
		return "downline"
	case ComponentTeamBonus, ComponentTeamRecruitment, ComponentTeamGraduation:
		return "team"
	}
	return "other"
}

type PayoutStatus string

const (
	PayoutStatusSubmitted  PayoutStatus = "SUBMITTED"
	PayoutStatusInProgress PayoutStatus = "IN_PROGRESS"
	PayoutStatusApproved   PayoutStatus = "APPROVED"
	PayoutStatusPaid       PayoutStatus = "PAID"
	PayoutStatusRejected   PayoutStatus = "REJECTED"
)

func (s PayoutStatus) IsValid() bool {
	switch s {
	case PayoutStatusSubmitted, PayoutStatusInProgress, PayoutStatusApproved, PayoutStatusPaid, PayoutStatusRejected:
		return true
	}
	return false
}

func (s PayoutStatus) IsTerminal() bool {
	return s == PayoutStatusPaid || s == PayoutStatusRejected
}

// setsProcessedAt reports whether entering this status stamps processedAt.
func (s PayoutStatus) setsProcessedAt() bool {
	return s == PayoutStatusApproved || s == PayoutStatusPaid || s == PayoutStatusRejected
}

type ImportStatus string

const (
	ImportStatusProcessing ImportStatus = "PROCESSING"
	ImportStatusCompleted  ImportStatus = "COMPLETED"
	ImportStatusFailed     ImportStatus = "FAILED"
)
