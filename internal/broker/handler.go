// Package broker implements the HTTP backend the connect widget talks to. It starts
// HubSpot authorizations, receives the provider redirect, exchanges the code, and
// holds the resulting tokens briefly until the widget picks them up.
package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/HubConnect/internal/config"
	"github.com/router-for-me/HubConnect/internal/hubspot"
	"github.com/router-for-me/HubConnect/internal/logging"
	"github.com/router-for-me/HubConnect/internal/misc"
	"github.com/router-for-me/HubConnect/internal/store"
)

// Authorizer builds authorization URLs and exchanges codes with the provider.
type Authorizer interface {
	Configured() bool
	AuthURL(encodedState string) (string, error)
	Exchange(ctx context.Context, code string) ([]byte, error)
}

// ItemLoader loads CRM objects with an access token.
type ItemLoader interface {
	Items(ctx context.Context, accessToken string) ([]hubspot.IntegrationItem, error)
}

// Handler serves the /integrations/hubspot endpoints.
type Handler struct {
	kv             store.KV
	oauth          Authorizer
	loader         ItemLoader
	stateTTL       time.Duration
	credentialsTTL time.Duration
}

// NewHandler wires the handler from configuration and a state store.
func NewHandler(cfg *config.Config, kv store.KV) *Handler {
	return NewHandlerWith(cfg, kv, hubspot.NewOAuth(cfg), hubspot.NewLoader(cfg))
}

// NewHandlerWith wires the handler with explicit provider dependencies.
func NewHandlerWith(cfg *config.Config, kv store.KV, oauth Authorizer, loader ItemLoader) *Handler {
	return &Handler{
		kv:             kv,
		oauth:          oauth,
		loader:         loader,
		stateTTL:       time.Duration(cfg.StateTTLSeconds) * time.Second,
		credentialsTTL: time.Duration(cfg.CredentialsTTLSeconds) * time.Second,
	}
}

// Register mounts the HubSpot routes on the given router group.
func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/integrations/hubspot")
	g.POST("/authorize", h.PostAuthorize)
	g.GET("/oauth2callback", h.GetOAuthCallback)
	g.POST("/credentials", h.PostCredentials)
	g.POST("/status", h.PostStatus)
	g.POST("/load", h.PostLoad)
}

func stateKey(userID, orgID string) string {
	return fmt.Sprintf("hubspot_state:%s:%s", orgID, userID)
}

func credentialsKey(userID, orgID string) string {
	return fmt.Sprintf("hubspot_credentials:%s:%s", orgID, userID)
}

func detail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"detail": msg})
}

// sessionFromForm reads the form-encoded identity pair.
func sessionFromForm(c *gin.Context) (userID, orgID string, ok bool) {
	userID = strings.TrimSpace(c.PostForm("user_id"))
	orgID = strings.TrimSpace(c.PostForm("org_id"))
	if userID == "" || orgID == "" {
		detail(c, http.StatusBadRequest, "user_id and org_id are required.")
		return "", "", false
	}
	return userID, orgID, true
}

// PostAuthorize starts a flow for the session and returns the provider URL.
func (h *Handler) PostAuthorize(c *gin.Context) {
	userID, orgID, ok := sessionFromForm(c)
	if !ok {
		return
	}
	entry := logging.FromContext(c.Request.Context()).WithField("user_id", userID).WithField("org_id", orgID)

	if !h.oauth.Configured() {
		detail(c, http.StatusBadRequest, "Set HUBSPOT_CLIENT_ID and HUBSPOT_CLIENT_SECRET env vars (or the hubspot section of the config file).")
		return
	}

	nonce, err := misc.GenerateRandomState()
	if err != nil {
		entry.Errorf("generate oauth state: %v", err)
		detail(c, http.StatusInternalServerError, "Failed to generate state.")
		return
	}
	encoded, err := misc.EncodeState(misc.StateEnvelope{State: nonce, UserID: userID, OrgID: orgID})
	if err != nil {
		entry.Errorf("encode oauth state: %v", err)
		detail(c, http.StatusInternalServerError, "Failed to generate state.")
		return
	}
	ctx := c.Request.Context()
	if err = h.kv.Set(ctx, stateKey(userID, orgID), []byte(nonce), h.stateTTL); err != nil {
		entry.Errorf("save oauth state: %v", err)
		detail(c, http.StatusInternalServerError, "Failed to save state.")
		return
	}
	// A fresh flow supersedes any credentials left over from an abandoned one.
	if err = h.kv.Delete(ctx, credentialsKey(userID, orgID)); err != nil {
		entry.Warnf("clear stale credentials: %v", err)
	}

	authURL, err := h.oauth.AuthURL(encoded)
	if err != nil {
		entry.Errorf("build authorization url: %v", err)
		detail(c, http.StatusInternalServerError, "Failed to build authorization URL.")
		return
	}
	entry.Info("hubspot authorization started")
	c.JSON(http.StatusOK, gin.H{"authURL": authURL})
}

// GetOAuthCallback receives the provider redirect, exchanges the code, and parks
// the tokens for pickup. On success the returned page closes itself.
func (h *Handler) GetOAuthCallback(c *gin.Context) {
	ctx := c.Request.Context()
	encodedState := c.Query("state")

	if providerErr := strings.TrimSpace(c.Query("error")); providerErr != "" {
		if env, err := misc.DecodeState(encodedState); err == nil {
			h.abandon(ctx, env.UserID, env.OrgID)
		}
		logging.FromContext(ctx).Warnf("hubspot authorization denied: %s", providerErr)
		detail(c, http.StatusBadRequest, providerErr)
		return
	}

	env, err := misc.DecodeState(encodedState)
	if err != nil {
		detail(c, http.StatusBadRequest, "Invalid state.")
		return
	}
	entry := logging.FromContext(ctx).WithField("user_id", env.UserID).WithField("org_id", env.OrgID)

	saved, ok, err := h.kv.Get(ctx, stateKey(env.UserID, env.OrgID))
	if err != nil {
		entry.Errorf("load oauth state: %v", err)
		detail(c, http.StatusInternalServerError, "Failed to load state.")
		return
	}
	if !ok || string(saved) != env.State {
		entry.Warn("hubspot callback state mismatch")
		detail(c, http.StatusBadRequest, "State mismatch.")
		return
	}

	tokens, err := h.oauth.Exchange(ctx, c.Query("code"))
	if err != nil {
		entry.Errorf("hubspot code exchange: %v", err)
		h.abandon(ctx, env.UserID, env.OrgID)
		detail(c, http.StatusBadRequest, fmt.Sprintf("Token exchange failed: %v", err))
		return
	}

	if err = h.kv.Set(ctx, credentialsKey(env.UserID, env.OrgID), tokens, h.credentialsTTL); err != nil {
		entry.Errorf("save credentials: %v", err)
		detail(c, http.StatusInternalServerError, "Failed to save credentials.")
		return
	}
	if err = h.kv.Delete(ctx, stateKey(env.UserID, env.OrgID)); err != nil {
		entry.Warnf("delete oauth state: %v", err)
	}

	entry.Info("hubspot authorization completed")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(closeWindowHTML))
}

// abandon drops a pending state so pollers stop waiting on a flow that cannot finish.
func (h *Handler) abandon(ctx context.Context, userID, orgID string) {
	if userID == "" || orgID == "" {
		return
	}
	if err := h.kv.Delete(ctx, stateKey(userID, orgID)); err != nil {
		logging.FromContext(ctx).Warnf("drop oauth state: %v", err)
	}
}

// PostCredentials hands the exchanged tokens to the widget exactly once.
func (h *Handler) PostCredentials(c *gin.Context) {
	userID, orgID, ok := sessionFromForm(c)
	if !ok {
		return
	}
	payload, found, err := h.kv.Take(c.Request.Context(), credentialsKey(userID, orgID))
	if err != nil {
		logging.FromContext(c.Request.Context()).Errorf("take credentials: %v", err)
		detail(c, http.StatusInternalServerError, "Failed to load credentials.")
		return
	}
	if !found {
		detail(c, http.StatusBadRequest, "No credentials found.")
		return
	}
	c.Data(http.StatusOK, "application/json", payload)
}

// PostStatus reports whether an authorization for the session is still waiting
// on the user. The connect client polls it to learn when the window is done.
func (h *Handler) PostStatus(c *gin.Context) {
	userID, orgID, ok := sessionFromForm(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	_, hasState, err := h.kv.Get(ctx, stateKey(userID, orgID))
	if err == nil {
		var hasCredentials bool
		_, hasCredentials, err = h.kv.Get(ctx, credentialsKey(userID, orgID))
		if err == nil {
			c.JSON(http.StatusOK, gin.H{
				"pending":           hasState && !hasCredentials,
				"credentials_ready": hasCredentials,
			})
			return
		}
	}
	logging.FromContext(ctx).Errorf("read authorization status: %v", err)
	detail(c, http.StatusInternalServerError, "Failed to read status.")
}

// PostLoad returns the CRM objects visible to the supplied credentials.
func (h *Handler) PostLoad(c *gin.Context) {
	accessToken := hubspot.AccessToken(c.PostForm("credentials"))
	if accessToken == "" {
		detail(c, http.StatusBadRequest, "Missing access_token in credentials.")
		return
	}
	items, err := h.loader.Items(c.Request.Context(), accessToken)
	if err != nil {
		logging.FromContext(c.Request.Context()).Errorf("load hubspot items: %v", err)
		if errors.Is(err, context.Canceled) {
			return
		}
		detail(c, http.StatusBadGateway, "Failed to load HubSpot items.")
		return
	}
	if items == nil {
		items = []hubspot.IntegrationItem{}
	}
	c.JSON(http.StatusOK, items)
}
