package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"venty/internal/agreement"
	"venty/internal/services"
	"venty/internal/utils"
	"venty/pkg/logger"

	"github.com/gin-gonic/gin"
)

var sendStatus = map[string]int{
	"empty_message":    http.StatusBadRequest,
	"message_too_long": http.StatusBadRequest,
	"channel_locked":   http.StatusConflict,
	"policy_warning":   http.StatusUnprocessableEntity,
	"sender_suspended": http.StatusForbidden,
	"not_participant":  http.StatusForbidden,
}

// respondError maps service errors onto the response envelope.
func respondError(c *gin.Context, err error, action string) {
	var sendErr *services.SendError
	if errors.As(err, &sendErr) {
		code := sendErr.Code()
		status, ok := sendStatus[code]
		if !ok {
			status = http.StatusBadRequest
		}
		details := map[string]string{"reason": code}
		if sendErr.MatchedTerm != "" {
			details["matched_term"] = sendErr.MatchedTerm
		}
		if sendErr.ViolationCount > 0 {
			details["violation_count"] = strconv.FormatInt(sendErr.ViolationCount, 10)
		}
		utils.ErrorResponseWithCode(c, status, strings.ToUpper(code), sendErr.Notice, details)
		return
	}

	switch {
	case errors.Is(err, agreement.ErrInvalidToggle):
		utils.ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidConversation):
		utils.ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrConversationNotFound), errors.Is(err, services.ErrMessageNotFound):
		utils.NotFoundResponse(c, err.Error())
	case errors.Is(err, services.ErrRoleMismatch):
		utils.ErrorResponseWithCode(c, http.StatusForbidden, "ROLE_MISMATCH", "Your account cannot take that role", nil)
	case errors.Is(err, services.ErrNotParticipant):
		utils.ForbiddenResponse(c, "You are not part of this conversation")
	case errors.Is(err, agreement.ErrLocked):
		utils.ErrorResponseWithCode(c, http.StatusConflict, "AGREEMENT_LOCKED", "Agreement already reached", nil)
	case errors.Is(err, services.ErrChannelLocked):
		utils.ErrorResponseWithCode(c, http.StatusConflict, "CHANNEL_LOCKED", "This conversation is closed", nil)
	case errors.Is(err, services.ErrContactsHidden):
		utils.ErrorResponseWithCode(c, http.StatusConflict, "CONTACTS_HIDDEN", "Contact details are shared only after both sides agree", nil)
	default:
		logger.LogError(err, action, map[string]interface{}{
			"path": c.Request.URL.Path,
		})
		utils.InternalErrorResponse(c, "Failed to "+action)
	}
}

// channelParam reads the optional ?channel= variant.
func channelParam(c *gin.Context) (agreement.Variant, bool) {
	channel := agreement.Variant(c.Query("channel"))
	if channel == "" {
		return "", true
	}
	return channel, channel.IsValid()
}
