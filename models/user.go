package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User represents an account with role-based access
type User struct {
	ID             string     `gorm:"type:uuid;primaryKey" json:"id"`
	Email          string     `gorm:"uniqueIndex;not null" json:"email"`
	Username       string     `gorm:"uniqueIndex;not null" json:"username"`
	HashedPassword string     `gorm:"not null" json:"-"`
	FullName       string     `json:"full_name"`
	IsActive       bool       `gorm:"default:true" json:"is_active"`
	IsSuperuser    bool       `gorm:"default:false" json:"is_superuser"`
	LastLogin      *time.Time `json:"last_login"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// BeforeCreate assigns a UUID before the row is inserted
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// SetPassword hashes and sets the password for the user
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.HashedPassword = string(hash)
	return nil
}

// CheckPassword verifies the provided password against the stored hash
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(password))
	return err == nil
}

// Role is a named permission label, many-to-many with User
type Role struct {
	ID          string `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Description string `json:"description"`
}

func (r *Role) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// UserRole associates a user with a role
type UserRole struct {
	UserID string `gorm:"type:uuid;primaryKey" json:"user_id"`
	RoleID string `gorm:"type:uuid;primaryKey" json:"role_id"`
}

// Default role names
const (
	RoleAdmin   = "admin"
	RoleAnalyst = "analyst"
	RoleViewer  = "viewer"
)

// HasRole checks role membership by explicit join query. Superusers pass
// every role check without consulting the role tables.
func HasRole(db *gorm.DB, user *User, roleName string) (bool, error) {
	if user.IsSuperuser {
		return true, nil
	}
	var count int64
	err := db.Model(&UserRole{}).
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("user_roles.user_id = ? AND roles.name = ?", user.ID, roleName).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetRoles returns the roles held by a user
func GetRoles(db *gorm.DB, userID string) ([]Role, error) {
	var roles []Role
	err := db.Model(&Role{}).
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userID).
		Order("roles.name").
		Find(&roles).Error
	return roles, err
}

// AddRole grants a role to a user. Granting an already-held role is a no-op.
func AddRole(db *gorm.DB, userID, roleName string) error {
	var role Role
	if err := db.Where("name = ?", roleName).First(&role).Error; err != nil {
		return err
	}

	var existing UserRole
	err := db.Where("user_id = ? AND role_id = ?", userID, role.ID).First(&existing).Error
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	return db.Create(&UserRole{UserID: userID, RoleID: role.ID}).Error
}

// RemoveRole revokes a role from a user
func RemoveRole(db *gorm.DB, userID, roleName string) error {
	var role Role
	if err := db.Where("name = ?", roleName).First(&role).Error; err != nil {
		return err
	}
	return db.Where("user_id = ? AND role_id = ?", userID, role.ID).Delete(&UserRole{}).Error
}

// MigrateUserModels runs database migrations for user-related models and
// seeds the default roles
func MigrateUserModels(db *gorm.DB) error {
	if err := db.AutoMigrate(&User{}, &Role{}, &UserRole{}); err != nil {
		return err
	}

	for _, name := range []string{RoleAdmin, RoleAnalyst, RoleViewer} {
		var existing Role
		if errors.Is(db.Where("name = ?", name).First(&existing).Error, gorm.ErrRecordNotFound) {
			if err := db.Create(&Role{Name: name}).Error; err != nil {
				return err
			}
		}
	}

	return nil
}

// SeedDefaultSuperuser creates the first superuser if no users exist yet.
// Credentials come from FIRST_SUPERUSER_EMAIL / FIRST_SUPERUSER_PASSWORD.
func SeedDefaultSuperuser(db *gorm.DB, email, password string) error {
	if email == "" || password == "" {
		return nil
	}

	var count int64
	db.Model(&User{}).Count(&count)
	if count > 0 {
		return nil
	}

	admin := &User{
		Email:       email,
		Username:    "admin",
		FullName:    "Administrator",
		IsActive:    true,
		IsSuperuser: true,
	}
	if err := admin.SetPassword(password); err != nil {
		return err
	}

	return db.Create(admin).Error
}
