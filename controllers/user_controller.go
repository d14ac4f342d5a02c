package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"cryptovision_backend/middleware"
	"cryptovision_backend/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// UserController handles user-related requests
type UserController struct {
	db *gorm.DB
}

// NewUserController creates a new user controller
func NewUserController(db *gorm.DB) *UserController {
	return &UserController{db: db}
}

// userUpdateRequest uses pointer fields so absent fields are left untouched
type userUpdateRequest struct {
	Email       *string `json:"email"`
	Username    *string `json:"username"`
	FullName    *string `json:"full_name"`
	Password    *string `json:"password"`
	IsActive    *bool   `json:"is_active"`
	IsSuperuser *bool   `json:"is_superuser"`
}

// GetMe returns the current user with their role names
// GET /api/v1/users/me
func (uc *UserController) GetMe(c *gin.Context) {
	user := middleware.CurrentUser(c)

	roles, err := models.GetRoles(uc.db, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch roles"})
		return
	}
	roleNames := make([]string, 0, len(roles))
	for _, role := range roles {
		roleNames = append(roleNames, role.Name)
	}

	c.JSON(http.StatusOK, gin.H{"data": user, "roles": roleNames})
}

// UpdateMe updates the current user's own record
// PUT /api/v1/users/me
func (uc *UserController) UpdateMe(c *gin.Context) {
	user := middleware.CurrentUser(c)
	uc.applyUpdate(c, user, user.IsSuperuser)
}

// GetUsers returns all users with pagination (superuser only)
// GET /api/v1/users
func (uc *UserController) GetUsers(c *gin.Context) {
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	var users []models.User
	if err := uc.db.Order("id").Offset(skip).Limit(limit).Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": users})
}

// CreateUser registers a new user. Open endpoint, no authentication.
// POST /api/v1/users
func (uc *UserController) CreateUser(c *gin.Context) {
	var request struct {
		Email    string `json:"email" binding:"required,email"`
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required,min=8"`
		FullName string `json:"full_name"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var existing models.User
	if err := uc.db.Where("email = ?", request.Email).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "A user with this email already exists"})
		return
	}
	if err := uc.db.Where("username = ?", request.Username).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "A user with this username already exists"})
		return
	}

	user := models.User{
		Email:    request.Email,
		Username: request.Username,
		FullName: request.FullName,
		IsActive: true,
	}
	if err := user.SetPassword(request.Password); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	if err := uc.db.Create(&user).Error; err != nil {
		// a concurrent registration can slip past the pre-checks; the
		// unique indexes still hold
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "A user with this email or username already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	// New accounts start with the viewer role
	if err := models.AddRole(uc.db, user.ID, models.RoleViewer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to assign default role"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": user})
}

// GetUser returns a single user. Users see only themselves unless superuser.
// GET /api/v1/users/:id
func (uc *UserController) GetUser(c *gin.Context) {
	id := c.Param("id")
	current := middleware.CurrentUser(c)

	if current.ID != id && !current.IsSuperuser {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not enough permissions"})
		return
	}

	var user models.User
	if err := uc.db.Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": user})
}

// UpdateUser partially updates a user. Self or superuser; only superusers
// may change the superuser flag.
// PUT /api/v1/users/:id
func (uc *UserController) UpdateUser(c *gin.Context) {
	id := c.Param("id")
	current := middleware.CurrentUser(c)

	if current.ID != id && !current.IsSuperuser {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not enough permissions"})
		return
	}

	var user models.User
	if err := uc.db.Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user"})
		return
	}

	uc.applyUpdate(c, &user, current.IsSuperuser)
}

// applyUpdate binds a partial update payload and persists only the fields
// present in it
func (uc *UserController) applyUpdate(c *gin.Context, user *models.User, allowPrivileged bool) {
	var request userUpdateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if request.Email != nil {
		updates["email"] = *request.Email
	}
	if request.Username != nil {
		updates["username"] = *request.Username
	}
	if request.FullName != nil {
		updates["full_name"] = *request.FullName
	}
	if request.Password != nil && *request.Password != "" {
		if err := user.SetPassword(*request.Password); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}
		updates["hashed_password"] = user.HashedPassword
	}
	// privileged flags are silently dropped for non-superusers
	if allowPrivileged {
		if request.IsActive != nil {
			updates["is_active"] = *request.IsActive
		}
		if request.IsSuperuser != nil {
			updates["is_superuser"] = *request.IsSuperuser
		}
	}

	if len(updates) > 0 {
		if err := uc.db.Model(user).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": user})
}

// DeleteUser removes a user and, by cascade, their alerts (superuser only).
// Self-deletion is rejected even for superusers.
// DELETE /api/v1/users/:id
func (uc *UserController) DeleteUser(c *gin.Context) {
	id := c.Param("id")
	current := middleware.CurrentUser(c)

	if current.ID == id {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete yourself"})
		return
	}

	var user models.User
	if err := uc.db.Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user"})
		return
	}

	err := uc.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&models.Alert{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.UserRole{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": user})
}

// AddUserRole grants a role to a user (superuser only)
// POST /api/v1/users/:id/roles/:role
func (uc *UserController) AddUserRole(c *gin.Context) {
	id := c.Param("id")
	roleName := c.Param("role")

	var user models.User
	if err := uc.db.Where("id = ?", id).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	if err := models.AddRole(uc.db, id, roleName); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown role: " + roleName})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add role"})
		return
	}

	uc.respondWithRoles(c, &user)
}

// RemoveUserRole revokes a role from a user (superuser only)
// DELETE /api/v1/users/:id/roles/:role
func (uc *UserController) RemoveUserRole(c *gin.Context) {
	id := c.Param("id")
	roleName := c.Param("role")

	var user models.User
	if err := uc.db.Where("id = ?", id).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	if err := models.RemoveRole(uc.db, id, roleName); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown role: " + roleName})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove role"})
		return
	}

	uc.respondWithRoles(c, &user)
}

func (uc *UserController) respondWithRoles(c *gin.Context, user *models.User) {
	roles, err := models.GetRoles(uc.db, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch roles"})
		return
	}
	roleNames := make([]string, 0, len(roles))
	for _, role := range roles {
		roleNames = append(roleNames, role.Name)
	}
	c.JSON(http.StatusOK, gin.H{"data": user, "roles": roleNames})
}
