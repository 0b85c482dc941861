package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/cloudly/backend/internal/metrics"
	"github.com/cloudly/backend/internal/middleware"
	"github.com/cloudly/backend/internal/models"
	"github.com/cloudly/backend/pkg/logger"
	"github.com/cloudly/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const authTokenTTL = 24 * time.Hour

type AuthHandler struct {
	DB *gorm.DB
}

func NewAuthHandler(db *gorm.DB) *AuthHandler {
	return &AuthHandler{DB: db}
}

func generateOneShotToken() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// issueToken invalidates any live token with the same purpose and creates a
// fresh one. The token value stands in for an emailed link; it is logged and
// returned to the caller.
func (h *AuthHandler) issueToken(userID uuid.UUID, purpose models.TokenPurpose) (*models.AuthToken, error) {
	value, err := generateOneShotToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	h.DB.Model(&models.AuthToken{}).
		Where("user_id = ? AND purpose = ? AND used_at IS NULL", userID, purpose).
		Update("used_at", now)

	token := models.AuthToken{
		UserID:    userID,
		Token:     value,
		Purpose:   purpose,
		ExpiresAt: now.Add(authTokenTTL),
	}
	if err := h.DB.Create(&token).Error; err != nil {
		return nil, err
	}

	logger.InfoWithUser(userID.String(), "auth_token_issued", map[string]interface{}{
		"purpose":    string(purpose),
		"expires_at": token.ExpiresAt,
	})
	return &token, nil
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)

	if _, err := mail.ParseAddress(req.Email); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid email")
	}
	if len(req.Password) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}
	if req.Name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}

	var existing models.User
	if err := h.DB.First(&existing, "email = ?", req.Email).Error; err == nil {
		return utils.Error(c, fiber.StatusConflict, "email already registered")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking existing user")
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	user := models.User{
		Email:        req.Email,
		PasswordHash: passwordHash,
		Name:         req.Name,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating user")
	}

	meta := models.UserMeta{UserID: user.ID}
	if err := h.DB.Create(&meta).Error; err != nil {
		logger.Error("user_meta_create_failed", err, map[string]interface{}{
			"user_id": user.ID.String(),
		})
	}

	verification, err := h.issueToken(user.ID, models.TokenPurposeVerifyEmail)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed issuing verification token")
	}

	logger.Info("user_registered", map[string]interface{}{
		"user_id": user.ID.String(),
		"email":   user.Email,
	})

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"token":             token,
		"user":              user,
		"verificationToken": verification.Token,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if req.Email == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email and password are required")
	}

	var user models.User
	if err := h.DB.First(&user, "email = ?", req.Email).Error; err != nil {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		logger.Warn("login_failed_user_not_found", map[string]interface{}{
			"email": req.Email,
			"ip":    c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		logger.Warn("login_failed_invalid_password", map[string]interface{}{
			"user_id": user.ID.String(),
			"ip":      c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	logger.InfoWithUser(user.ID.String(), "user_login", map[string]interface{}{
		"ip": c.IP(),
	})

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"token": token, "user": user})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, user)
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if len(req.NewPassword) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "newPassword must be at least 8 characters")
	}
	if !utils.CheckPassword(req.OldPassword, currentUser.PasswordHash) {
		return utils.Error(c, fiber.StatusBadRequest, "oldPassword is incorrect")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed hashing password")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", currentUser.ID).Update("password_hash", hash).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating password")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password updated"})
}

// VerifySend issues a fresh email-verification token for the logged-in user.
func (h *AuthHandler) VerifySend(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	if currentUser.EmailVerified {
		return utils.Error(c, fiber.StatusBadRequest, "email already verified")
	}

	token, err := h.issueToken(currentUser.ID, models.TokenPurposeVerifyEmail)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed issuing verification token")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"verificationToken": token.Token})
}

type verifyConfirmRequest struct {
	Token string `json:"token"`
}

// VerifyConfirm consumes a verification token; no session is required since
// the link lands on a fresh page.
func (h *AuthHandler) VerifyConfirm(c *fiber.Ctx) error {
	var req verifyConfirmRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		return utils.Error(c, fiber.StatusBadRequest, "token is required")
	}

	var token models.AuthToken
	err := h.DB.First(&token, "token = ? AND purpose = ?", req.Token, models.TokenPurposeVerifyEmail).Error
	if err != nil || !token.Usable(time.Now()) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid or expired verification token")
	}

	now := time.Now()
	if err := h.DB.Model(&models.AuthToken{}).Where("id = ?", token.ID).Update("used_at", now).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed consuming token")
	}
	if err := h.DB.Model(&models.User{}).Where("id = ?", token.UserID).Update("email_verified", true).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating user")
	}

	logger.InfoWithUser(token.UserID.String(), "email_verified", nil)
	return utils.Success(c, fiber.StatusOK, fiber.Map{"verified": true})
}

// VerifyStatus is the poll target for the verification-sent screen.
func (h *AuthHandler) VerifyStatus(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", currentUser.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading user")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"verified": user.EmailVerified})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword answers uniformly whether or not the address is registered.
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req forgotPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid email")
	}

	response := fiber.Map{"message": "if the email is registered, a reset link has been sent"}

	var user models.User
	if err := h.DB.First(&user, "email = ?", req.Email).Error; err != nil {
		return utils.Success(c, fiber.StatusOK, response)
	}

	token, err := h.issueToken(user.ID, models.TokenPurposeResetPassword)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed issuing reset token")
	}

	response["resetToken"] = token.Token
	return utils.Success(c, fiber.StatusOK, response)
}

type resetPasswordRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Password != req.ConfirmPassword {
		return utils.Error(c, fiber.StatusBadRequest, "Passwords do not match")
	}
	if len(req.Password) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}

	var token models.AuthToken
	err := h.DB.First(&token, "token = ? AND purpose = ?", strings.TrimSpace(req.Token), models.TokenPurposeResetPassword).Error
	if err != nil || !token.Usable(time.Now()) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid or expired reset token")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed hashing password")
	}

	now := time.Now()
	if err := h.DB.Model(&models.AuthToken{}).Where("id = ?", token.ID).Update("used_at", now).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed consuming token")
	}
	if err := h.DB.Model(&models.User{}).Where("id = ?", token.UserID).Update("password_hash", hash).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating password")
	}

	logger.InfoWithUser(token.UserID.String(), "password_reset", nil)
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password reset"})
}
