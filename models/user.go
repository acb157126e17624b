package models

import (
	"context"
	"errors"
	"html"
	"strings"
	"time"

	"github.com/trend4media/billing_backend/config"
	"github.com/trend4media/billing_backend/utils"
	"gorm.io/gorm"
)

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"size:100;not null;unique" json:"username"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Email     *string   `gorm:"size:100;unique" json:"email"`
	Phone     string    `gorm:"size:20" json:"phone"`
	Password  string    `gorm:"size:255;not null" json:"password,omitempty"`
	Role      UserRole  `gorm:"size:20;not null;index" json:"role"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username string   `json:"username" validate:"required,max=100"`
	Name     string   `json:"name" validate:"required,max=100"`
	Email    string   `json:"email" validate:"omitempty,email"`
	Phone    string   `json:"phone"`
	Password string   `json:"password" validate:"required,min=8"`
	Role     UserRole `json:"role" validate:"required"`
}

type UpdateUserInput struct {
	Name     *string   `json:"name"`
	Phone    *string   `json:"phone"`
	Role     *UserRole `json:"role"`
	IsActive *bool     `json:"is_active"`
}

type LoginInfo struct {
	Token string   `json:"token"`
	Id    int      `json:"id"`
	Name  string   `json:"name"`
	Role  UserRole `json:"role"`
}

/*
caches:
	User:$id
	Token:$token
	UserTokens:$id
*/

func (user User) RemoveInstanceRedis(ctx context.Context) error {
	return utils.RemoveRedisItem(ctx, "User", user.ID)
}

func (result *User) PrepareGive() {
	result.Password = ""
}

func (user User) Active() bool {
	return utils.DereferencePtr(user.IsActive)
}

func Login(ctx context.Context, username string, password string) (*LoginInfo, error) {
	db := config.GetDB()
	var user User

	if err := db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).Take(&user).Error; err != nil {
		return nil, utils.NewValidationError("invalid username or password")
	}

	if err := utils.ComparePassword(user.Password, password); err != nil {
		return nil, err
	}

	if !user.Active() {
		return nil, utils.NewValidationError("user is disabled")
	}

	token, err := utils.CreateSession(ctx, utils.Session{
		UserId:   user.ID,
		Username: user.Username,
		Role:     string(user.Role),
	})
	if err != nil {
		return nil, err
	}

	return &LoginInfo{
		Token: token,
		Id:    user.ID,
		Name:  user.Name,
		Role:  user.Role,
	}, nil
}

// destroy current session
func Logout(ctx context.Context) (bool, error) {
	token, ok := utils.GetTokenFromContext(ctx)
	if !ok || token == "" {
		return false, utils.NewValidationError("token is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	if err := utils.RemoveSession(ctx, token, userId); err != nil {
		return false, err
	}
	return true, nil
}

func (input *NewUser) validate(ctx context.Context) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.Role.IsValid() {
		return utils.NewValidationError("invalid role %q", input.Role)
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, config.PhoneDefaultRegion()); err != nil {
			return utils.NewValidationError("invalid phone number: %v", err)
		}
	}

	var count int64
	db := config.GetDB().WithContext(ctx).Model(&User{}).Where("username = ?", strings.TrimSpace(input.Username))
	if input.Email != "" {
		db = db.Or("email = ?", strings.ToLower(input.Email))
	}
	if err := db.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return utils.NewValidationError("duplicate username or email")
	}
	return nil
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	hashedPassword, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	phone := input.Phone
	if phone != "" {
		if phone, err = utils.FormatPhoneNumber(phone, config.PhoneDefaultRegion()); err != nil {
			return nil, utils.NewValidationError("invalid phone number: %v", err)
		}
	}

	user := User{
		Username: html.EscapeString(strings.TrimSpace(input.Username)),
		Name:     strings.TrimSpace(input.Name),
		Email:    utils.NilIfEmpty(strings.ToLower(strings.TrimSpace(input.Email))),
		Phone:    phone,
		Password: string(hashedPassword),
		Role:     input.Role,
		IsActive: utils.NewTrue(),
	}

	if err := config.GetDB().WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	user.PrepareGive()
	return &user, nil
}

func GetUser(ctx context.Context, id int) (*User, error) {
	var result User
	if exists, err := utils.RetrieveRedis(ctx, "User", id, &result); err == nil && exists {
		return &result, nil
	}

	if err := config.GetDB().WithContext(ctx).First(&result, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("user", id)
		}
		return nil, err
	}
	result.PrepareGive()
	_ = utils.StoreRedis(ctx, "User", id, &result)

	return &result, nil
}

// ListManagers returns team leaders and sales reps ordered by id.
func ListManagers(ctx context.Context, activeOnly bool) ([]*User, error) {
	var results []*User
	dbCtx := config.GetDB().WithContext(ctx).Where("role IN ?", []UserRole{UserRoleTeamLeader, UserRoleSalesRep})
	if activeOnly {
		dbCtx = dbCtx.Where("is_active = ?", true)
	}
	if err := dbCtx.Order("id").Find(&results).Error; err != nil {
		return nil, err
	}
	for _, u := range results {
		u.PrepareGive()
	}
	return results, nil
}

// UpdateUser applies admin changes. When the active flag or the manager role changes,
// the closure is rebuilt in the same transaction because roots are active managers only.
func UpdateUser(ctx context.Context, id int, input *UpdateUserInput) (*User, error) {
	if input.Role != nil && !input.Role.IsValid() {
		return nil, utils.NewValidationError("invalid role %q", *input.Role)
	}
	if input.Phone != nil && *input.Phone != "" {
		if err := utils.ValidatePhoneNumber(*input.Phone, config.PhoneDefaultRegion()); err != nil {
			return nil, utils.NewValidationError("invalid phone number: %v", err)
		}
	}

	var user User
	update := func(tx *gorm.DB) error {
		if err := tx.First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NewNotFoundError("user", id)
			}
			return err
		}

		updates := map[string]interface{}{}
		structural := false
		if input.Name != nil {
			updates["name"] = strings.TrimSpace(*input.Name)
		}
		if input.Phone != nil {
			updates["phone"] = *input.Phone
		}
		if input.Role != nil && *input.Role != user.Role {
			if err := validateRoleChange(tx, user, *input.Role); err != nil {
				return err
			}
			updates["role"] = *input.Role
			structural = true
		}
		if input.IsActive != nil && *input.IsActive != user.Active() {
			updates["is_active"] = *input.IsActive
			structural = true
		}
		if len(updates) == 0 {
			return nil
		}

		if err := tx.Model(&user).Updates(updates).Error; err != nil {
			return err
		}
		if structural {
			return RebuildOrgRelations(tx)
		}
		return nil
	}
	// role and active checks read edges, so they run under the hierarchy lock
	var err error
	if input.Role != nil || input.IsActive != nil {
		err = HierarchyTransaction(ctx, update)
	} else {
		err = config.GetDB().WithContext(ctx).Transaction(update)
	}
	if err != nil {
		return nil, err
	}

	_ = user.RemoveInstanceRedis(ctx)
	if !user.Active() || input.Role != nil {
		if err := utils.RemoveUserSessions(ctx, user.ID); err != nil {
			config.GetLogger().WithField("userId", user.ID).WithError(err).Warn("failed to clear user sessions")
		}
	}
	user.PrepareGive()
	return &user, nil
}

// validateRoleChange keeps active edges valid: a parent must stay a TEAM_LEADER and
// a child must stay a manager.
func validateRoleChange(tx *gorm.DB, user User, newRole UserRole) error {
	var children, parents int64
	if user.Role == UserRoleTeamLeader && newRole != UserRoleTeamLeader {
		if err := tx.Model(&OrgEdge{}).Where("parent_id = ? AND valid_to IS NULL", user.ID).Count(&children).Error; err != nil {
			return err
		}
	}
	if !newRole.IsManager() {
		if err := tx.Model(&OrgEdge{}).Where("child_id = ? AND valid_to IS NULL", user.ID).Count(&parents).Error; err != nil {
			return err
		}
	}
	return roleChangeViolation(user, newRole, children, parents)
}

func roleChangeViolation(user User, newRole UserRole, activeChildren int64, activeParents int64) error {
	if user.Role == UserRoleTeamLeader && newRole != UserRoleTeamLeader && activeChildren > 0 {
		return utils.NewValidationError("user %d still has %d active children", user.ID, activeChildren)
	}
	if !newRole.IsManager() && activeParents > 0 {
		return utils.NewValidationError("user %d has an active parent and must stay a team leader or sales rep", user.ID)
	}
	return nil
}

func ChangePassword(ctx context.Context, oldPassword string, newPassword string) error {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return utils.NewValidationError("user id is required")
	}
	if len(newPassword) < 8 {
		return utils.NewValidationError("password must be at least 8 characters")
	}

	var user User
	db := config.GetDB()
	if err := db.WithContext(ctx).First(&user, userId).Error; err != nil {
		return err
	}
	if err := utils.ComparePassword(user.Password, oldPassword); err != nil {
		return utils.NewValidationError("old password is wrong")
	}

	hashedPassword, err := utils.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := db.WithContext(ctx).Model(&user).UpdateColumn("password", string(hashedPassword)).Error; err != nil {
		return err
	}

	// destroying all session tokens
	return utils.RemoveUserSessions(ctx, user.ID)
}
