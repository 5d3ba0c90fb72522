package handlers

import (
	"context"
	"net/http"
	"time"

	"venty/internal/config"
	"venty/internal/middleware"
	"venty/internal/services"
	"venty/internal/utils"
	"venty/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type AdminHandler struct {
	service *services.NegotiationService
	tokens  *utils.TokenManager
	admin   config.AdminConfig
	timeout time.Duration
}

func NewAdminHandler(service *services.NegotiationService, tokens *utils.TokenManager, admin config.AdminConfig, timeout time.Duration) *AdminHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AdminHandler{
		service: service,
		tokens:  tokens,
		admin:   admin,
		timeout: timeout,
	}
}

type adminLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type adminCloseRequest struct {
	Reason string `json:"reason" validate:"max=200"`
}

// Login checks the configured admin credentials and issues an admin token.
func (h *AdminHandler) Login(c *gin.Context) {
	var req adminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, utils.ValidationDetails(errs))
		return
	}

	if h.admin.PasswordHash == "" || req.Username != h.admin.Username ||
		bcrypt.CompareHashAndPassword([]byte(h.admin.PasswordHash), []byte(req.Password)) != nil {
		logger.LogSecurityEvent("admin_login_failed", "", c.ClientIP(), map[string]interface{}{
			"username": req.Username,
		})
		utils.UnauthorizedResponse(c, "Invalid credentials")
		return
	}

	token, err := h.tokens.GenerateAdminJWT(h.admin.Username, h.admin.Username)
	if err != nil {
		logger.LogError(err, "generate admin token", nil)
		utils.InternalErrorResponse(c, "Failed to generate token")
		return
	}

	logger.LogAdminAction(h.admin.Username, "login", "", map[string]interface{}{
		"ip": c.ClientIP(),
	})
	utils.SuccessResponseWithMessage(c, "Login successful", gin.H{
		"token":    token,
		"username": h.admin.Username,
	})
}

// GetViolations returns the violation record of :user_id.
func (h *AdminHandler) GetViolations(c *gin.Context) {
	channel, ok := channelParam(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid channel")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	record, err := h.service.ViolationStatus(ctx, c.Param("user_id"), channel)
	if err != nil {
		respondError(c, err, "get violation status")
		return
	}
	utils.SuccessResponse(c, record)
}

// ResetViolations clears the violation counter of :user_id, lifting a
// suspension.
func (h *AdminHandler) ResetViolations(c *gin.Context) {
	adminID := c.GetString(middleware.ContextAdminID)
	userID := c.Param("user_id")

	channel, ok := channelParam(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid channel")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := h.service.ResetViolations(ctx, userID, channel); err != nil {
		respondError(c, err, "reset violations")
		return
	}

	logger.LogAdminAction(adminID, "reset_violations", userID, map[string]interface{}{
		"channel": channel,
	})

	record, err := h.service.ViolationStatus(ctx, userID, channel)
	if err != nil {
		respondError(c, err, "get violation status")
		return
	}
	utils.SuccessResponseWithMessage(c, "Violations reset", record)
}

// CloseConversation cancels a negotiating conversation.
func (h *AdminHandler) CloseConversation(c *gin.Context) {
	adminID := c.GetString(middleware.ContextAdminID)

	var req adminCloseRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, utils.ValidationDetails(errs))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	conv, err := h.service.CloseByAdmin(ctx, c.Param("id"), adminID, req.Reason)
	if err != nil {
		respondError(c, err, "close conversation")
		return
	}

	logger.LogAdminAction(adminID, "close_conversation", conv.ID, map[string]interface{}{
		"reason": conv.CloseReason,
	})
	utils.SuccessResponseWithMessage(c, "Conversation closed", conv)
}
