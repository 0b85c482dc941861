package handlers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudly/backend/internal/config"
	"github.com/cloudly/backend/internal/models"
	"github.com/cloudly/backend/pkg/logger"
	"github.com/cloudly/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"
)

type OAuthHandler struct {
	DB  *gorm.DB
	Cfg *config.Config

	mu     sync.Mutex
	states map[string]oauthState
}

type oauthState struct {
	provider  string
	expiresAt time.Time
}

func NewOAuthHandler(db *gorm.DB, cfg *config.Config) *OAuthHandler {
	return &OAuthHandler{DB: db, Cfg: cfg, states: make(map[string]oauthState)}
}

func (h *OAuthHandler) oauthConfig(provider string) (*oauth2.Config, error) {
	switch strings.ToLower(provider) {
	case "google":
		if !h.Cfg.OAuth.Google.Enabled {
			return nil, errors.New("google oauth is not enabled")
		}
		return &oauth2.Config{
			ClientID:     h.Cfg.OAuth.Google.ClientID,
			ClientSecret: h.Cfg.OAuth.Google.ClientSecret,
			RedirectURL:  h.Cfg.OAuth.Google.RedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		}, nil

	case "github":
		if !h.Cfg.OAuth.GitHub.Enabled {
			return nil, errors.New("github oauth is not enabled")
		}
		return &oauth2.Config{
			ClientID:     h.Cfg.OAuth.GitHub.ClientID,
			ClientSecret: h.Cfg.OAuth.GitHub.ClientSecret,
			RedirectURL:  h.Cfg.OAuth.GitHub.RedirectURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     githuboauth.Endpoint,
		}, nil

	default:
		return nil, fmt.Errorf("unknown oauth provider %q", provider)
	}
}

func (h *OAuthHandler) newState(provider string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	state := base64.URLEncoding.EncodeToString(raw)

	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	for key, value := range h.states {
		if now.After(value.expiresAt) {
			delete(h.states, key)
		}
	}
	h.states[state] = oauthState{provider: provider, expiresAt: now.Add(10 * time.Minute)}
	return state, nil
}

func (h *OAuthHandler) consumeState(state, provider string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	stored, ok := h.states[state]
	if !ok {
		return false
	}
	delete(h.states, state)
	return stored.provider == provider && time.Now().Before(stored.expiresAt)
}

// Redirect returns the provider's consent URL for the frontend to follow.
func (h *OAuthHandler) Redirect(c *fiber.Ctx) error {
	provider := strings.ToLower(c.Params("provider"))
	cfg, err := h.oauthConfig(provider)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	state, err := h.newState(provider)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating state")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"url": cfg.AuthCodeURL(state),
	})
}

type oauthIdentity struct {
	Email string
	Name  string
}

func fetchGoogleIdentity(ctx context.Context, cfg *oauth2.Config, token *oauth2.Token) (*oauthIdentity, error) {
	client := cfg.Client(ctx, token)
	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Email == "" {
		return nil, errors.New("google userinfo returned no email")
	}
	return &oauthIdentity{Email: payload.Email, Name: payload.Name}, nil
}

func fetchGitHubIdentity(ctx context.Context, cfg *oauth2.Config, token *oauth2.Token) (*oauthIdentity, error) {
	client := cfg.Client(ctx, token)
	resp, err := client.Get("https://api.github.com/user")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Email string `json:"email"`
		Name  string `json:"name"`
		Login string `json:"login"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Name == "" {
		payload.Name = payload.Login
	}

	if payload.Email == "" {
		emailResp, err := client.Get("https://api.github.com/user/emails")
		if err != nil {
			return nil, err
		}
		defer emailResp.Body.Close()

		var emails []struct {
			Email   string `json:"email"`
			Primary bool   `json:"primary"`
		}
		if err := json.NewDecoder(emailResp.Body).Decode(&emails); err != nil {
			return nil, err
		}
		for _, e := range emails {
			if e.Primary {
				payload.Email = e.Email
				break
			}
		}
	}

	if payload.Email == "" {
		return nil, errors.New("github account has no accessible email")
	}
	return &oauthIdentity{Email: payload.Email, Name: payload.Name}, nil
}

// Callback exchanges the provider code and signs the user in, creating a
// verified account on first login.
func (h *OAuthHandler) Callback(c *fiber.Ctx) error {
	provider := strings.ToLower(c.Params("provider"))
	cfg, err := h.oauthConfig(provider)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	if !h.consumeState(c.Query("state"), provider) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid oauth state")
	}

	code := c.Query("code")
	if code == "" {
		return utils.Error(c, fiber.StatusBadRequest, "missing authorization code")
	}

	token, err := cfg.Exchange(c.Context(), code)
	if err != nil {
		logger.Error("oauth_exchange_failed", err, map[string]interface{}{"provider": provider})
		return utils.Error(c, fiber.StatusBadGateway, "code exchange failed")
	}

	var identity *oauthIdentity
	switch provider {
	case "google":
		identity, err = fetchGoogleIdentity(c.Context(), cfg, token)
	case "github":
		identity, err = fetchGitHubIdentity(c.Context(), cfg, token)
	}
	if err != nil {
		logger.Error("oauth_identity_failed", err, map[string]interface{}{"provider": provider})
		return utils.Error(c, fiber.StatusBadGateway, "failed fetching identity")
	}

	email := strings.ToLower(strings.TrimSpace(identity.Email))

	var user models.User
	err = h.DB.First(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Provider-attested addresses count as verified.
		user = models.User{
			Email:         email,
			Name:          identity.Name,
			PasswordHash:  "",
			EmailVerified: true,
			AuthProvider:  &provider,
		}
		if err := h.DB.Create(&user).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed creating user")
		}
		if err := h.DB.Create(&models.UserMeta{UserID: user.ID}).Error; err != nil {
			logger.Error("user_meta_create_failed", err, map[string]interface{}{
				"user_id": user.ID.String(),
			})
		}
		logger.InfoWithUser(user.ID.String(), "oauth_user_registered", map[string]interface{}{
			"provider": provider,
		})
	} else if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading user")
	}

	jwtToken, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	return c.Redirect(fmt.Sprintf("%s/auth/callback?token=%s", h.Cfg.Server.FrontendURL, jwtToken), fiber.StatusTemporaryRedirect)
}
