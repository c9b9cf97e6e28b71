package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"jobportal/internal/api/middleware"
	"jobportal/internal/auth"
	"jobportal/internal/database"
	"jobportal/internal/metrics"
	"jobportal/internal/uploads"
	"jobportal/internal/users"
)

const validationFailed = "Validation failed."

var errBadCredentials = errors.New("invalid email or password")

// UserHandler 处理注册、登录、资料修改、删除与用户列表。
type UserHandler struct {
	users       *users.Store
	tokens      *auth.TokenService
	hasher      *auth.Hasher
	uploads     *uploads.Manager
	limiter     *loginLimiter
	emailDomain string
}

// NewUserHandler 构造用户处理器。limiter 为 nil 时不做登录限流。
func NewUserHandler(store *users.Store, tokens *auth.TokenService, hasher *auth.Hasher, manager *uploads.Manager, limiter *loginLimiter, emailDomain string) *UserHandler {
	return &UserHandler{
		users:       store,
		tokens:      tokens,
		hasher:      hasher,
		uploads:     manager,
		limiter:     limiter,
		emailDomain: emailDomain,
	}
}

// userView is the public form of an account. It never carries the password hash.
type userView struct {
	FullName  string  `json:"fullName"`
	Email     string  `json:"email"`
	Role      string  `json:"role"`
	Type      string  `json:"type"`
	ImagePath *string `json:"imagePath,omitempty"`
}

func newUserView(u database.User) userView {
	return userView{FullName: u.FullName, Email: u.Email, Role: u.Role, Type: u.Role, ImagePath: u.ImagePath}
}

type showcaseView struct {
	FullName string           `json:"fullName"`
	Email    string           `json:"email"`
	Images   []database.Image `json:"images"`
}

type createUserRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	// Type is the older name of Role.
	Type string `json:"type"`
}

// Create 注册新账号。
func (h *UserHandler) Create(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, validationFailed)
		return
	}
	role := req.Role
	if role == "" {
		role = req.Type
	}
	if strings.TrimSpace(req.FullName) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" || role == "" {
		BadRequest(c, validationFailed)
		return
	}

	logger := middleware.LoggerFromContext(c).With(slog.String("email", req.Email))

	check := users.ValidateRegistration(users.Registration{
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
		Role:     role,
	}, h.emailDomain)
	if !check.OK() {
		logger.Info("registration rejected", slog.Any("check", check))
		respondError(c, check.Err())
		return
	}

	hashed, ok := h.hashPassword(c, req.Password)
	if !ok {
		return
	}
	parsedRole, _ := auth.ParseRole(role)

	user, err := h.users.Create(c.Request.Context(), users.NewUser{
		FullName:     req.FullName,
		Email:        req.Email,
		PasswordHash: hashed,
		Role:         parsedRole,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	logger.Info("user created", slog.Uint64("user_id", uint64(user.ID)))
	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully."})
}

func (h *UserHandler) hashPassword(c *gin.Context, password string) (string, bool) {
	hashed, err := h.hasher.Hash(password)
	switch {
	case errors.Is(err, auth.ErrPasswordTooLong):
		BadRequest(c, validationFailed)
		return "", false
	case err != nil:
		respondError(c, err)
		return "", false
	}
	return hashed, true
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login 校验口令并返回 Token；响应中不包含密码哈希。
func (h *UserHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		BadRequest(c, "Email and password are required.")
		return
	}
	if !users.ValidEmail(strings.TrimSpace(req.Email)) {
		BadRequest(c, "Invalid email format.")
		return
	}

	ctx := c.Request.Context()
	email := users.NormalizeEmail(req.Email)
	logger := middleware.LoggerFromContext(c).With(slog.String("email", email))

	if err := h.limiter.Allow(ctx, c.ClientIP(), email); err != nil {
		metrics.ObserveLogin(metrics.OutcomeRejected)
		logger.Info("login throttled", slog.Any("error", err))
		respondError(c, err)
		return
	}

	user, err := h.users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, users.ErrUserNotFound):
		err = errBadCredentials
	case err != nil:
		metrics.ObserveLogin(metrics.OutcomeError)
		respondError(c, err)
		return
	case !h.hasher.Verify(req.Password, user.PasswordHash):
		err = errBadCredentials
	}
	if err != nil {
		metrics.ObserveLogin(metrics.OutcomeRejected)
		logger.Info("login failed")
		h.limiter.Failed(ctx, email)
		Error(c, http.StatusUnauthorized, "Invalid email or password.")
		return
	}
	h.limiter.Succeeded(ctx, email)

	token, err := h.tokens.IssueDefault(auth.Identity{
		UserID:   user.ID,
		Email:    user.Email,
		FullName: user.FullName,
		Role:     auth.Role(user.Role),
	})
	if err != nil {
		metrics.ObserveLogin(metrics.OutcomeError)
		respondError(c, err)
		return
	}

	metrics.ObserveLogin(metrics.OutcomeOK)
	logger.Info("user logged in", slog.Uint64("user_id", uint64(user.ID)))
	c.JSON(http.StatusOK, gin.H{
		"message":   "Login successful.",
		"token":     token,
		"tokenType": "Bearer",
		"expiresIn": int64(h.tokens.TTL().Seconds()),
		"user":      newUserView(user),
	})
}

type editUserRequest struct {
	Email    string  `json:"email"`
	FullName *string `json:"fullName"`
	Password *string `json:"password"`
}

// Edit 修改姓名或密码。只有本人或管理员可以修改。
func (h *UserHandler) Edit(c *gin.Context) {
	var req editUserRequest
	if err := c.ShouldBindJSON(&req); err != nil || !users.ValidEmail(strings.TrimSpace(req.Email)) {
		BadRequest(c, validationFailed)
		return
	}

	claims, _ := middleware.ClaimsFromContext(c)
	if !auth.CanActOn(claims, req.Email) {
		respondError(c, auth.ErrForbidden)
		return
	}

	ctx := c.Request.Context()
	if _, err := h.users.FindByEmail(ctx, req.Email); err != nil {
		respondError(c, err)
		return
	}

	var changes users.Changes
	if req.FullName != nil {
		if !users.ValidFullName(*req.FullName) {
			BadRequest(c, validationFailed)
			return
		}
		changes.FullName = req.FullName
	}
	if req.Password != nil {
		if !users.ValidPassword(*req.Password) {
			BadRequest(c, validationFailed)
			return
		}
		hashed, ok := h.hashPassword(c, *req.Password)
		if !ok {
			return
		}
		changes.PasswordHash = &hashed
	}

	if _, err := h.users.Update(ctx, req.Email, changes); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User updated successfully."})
}

type deleteUserRequest struct {
	Email string `json:"email"`
}

// Delete 删除账号并清理其上传的图片文件。
func (h *UserHandler) Delete(c *gin.Context) {
	var req deleteUserRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		BadRequest(c, "Email is required.")
		return
	}

	ctx := c.Request.Context()
	removed, err := h.users.Delete(ctx, req.Email)
	if err != nil {
		respondError(c, err)
		return
	}

	logger := middleware.LoggerFromContext(c).With(slog.String("email", removed.Email))
	paths := make([]string, 0, len(removed.Images))
	for _, img := range removed.Images {
		paths = append(paths, img.Path)
	}
	if err := h.uploads.Purge(context.WithoutCancel(ctx), paths, middleware.GetCorrelationID(c)); err != nil {
		// the account is gone; leftover files are logged, not reported to the caller
		logger.Error("purge user images failed", slog.Any("error", err))
	}

	logger.Info("user deleted", slog.Int("images", len(paths)))
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully."})
}

func (h *UserHandler) listViews(c *gin.Context) ([]userView, bool) {
	all, err := h.users.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	views := make([]userView, 0, len(all))
	for _, u := range all {
		views = append(views, newUserView(u))
	}
	return views, true
}

// GetAll 返回全部用户（仅管理员）。
func (h *UserHandler) GetAll(c *gin.Context) {
	if views, ok := h.listViews(c); ok {
		c.JSON(http.StatusOK, gin.H{"users": views})
	}
}

// List is GetAll with a message, served at the collection root.
func (h *UserHandler) List(c *gin.Context) {
	if views, ok := h.listViews(c); ok {
		c.JSON(http.StatusOK, gin.H{"message": "Users fetched successfully.", "users": views})
	}
}

// Showcase 返回至少上传过一张图片的用户，公开访问。
func (h *UserHandler) Showcase(c *gin.Context) {
	owners, err := h.users.ListWithImages(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	views := make([]showcaseView, 0, len(owners))
	for _, u := range owners {
		views = append(views, showcaseView{FullName: u.FullName, Email: u.Email, Images: u.Images})
	}
	c.JSON(http.StatusOK, gin.H{"users": views})
}
