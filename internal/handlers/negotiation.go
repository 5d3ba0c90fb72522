package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"venty/internal/agreement"
	"venty/internal/config"
	"venty/internal/middleware"
	"venty/internal/models"
	"venty/internal/services"
	"venty/internal/utils"

	"github.com/gin-gonic/gin"
)

const defaultPageSize = 50

type NegotiationHandler struct {
	service     *services.NegotiationService
	pageSize    int
	maxPageSize int
	timeout     time.Duration
}

func NewNegotiationHandler(service *services.NegotiationService, cfg config.NegotiationConfig, timeout time.Duration) *NegotiationHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	return &NegotiationHandler{
		service:     service,
		pageSize:    cfg.PageSize,
		maxPageSize: cfg.MaxPageSize,
		timeout:     timeout,
	}
}

// participantRequest names one side of the pair. Names and contacts come
// from each side's own session token, never from the request.
type participantRequest struct {
	ID   string `json:"id" validate:"required,max=128"`
	Role string `json:"role" validate:"required,participant_role"`
}

type openConversationRequest struct {
	Variant      string               `json:"variant" validate:"required,variant"`
	ContextRef   string               `json:"context_ref" validate:"required,max=128"`
	Participants []participantRequest `json:"participants" validate:"len=2,dive"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type toggleAgreementRequest struct {
	MessageID string `json:"message_id"`
}

type closeConversationRequest struct {
	Reason string `json:"reason" validate:"max=200"`
}

func (h *NegotiationHandler) context(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

// sessionCaller builds the acting user from the verified session claims.
func sessionCaller(c *gin.Context) services.Caller {
	caller := services.Caller{
		ID:   c.GetString(middleware.ContextUserID),
		Role: c.GetString(middleware.ContextUserRole),
	}
	if v, ok := c.Get(middleware.ContextUserClaims); ok {
		if claims, ok := v.(*utils.UserClaims); ok {
			caller.DisplayName = claims.Name
			caller.Contact = models.Contact{Phone: claims.Phone, Email: claims.Email}
		}
	}
	return caller
}

// OpenConversation gets or creates the conversation for a context and pair.
// The caller must be one of the participants.
func (h *NegotiationHandler) OpenConversation(c *gin.Context) {
	me := sessionCaller(c)

	var req openConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, utils.ValidationDetails(errs))
		return
	}

	open := services.OpenRequest{
		Variant:    agreement.Variant(req.Variant),
		ContextRef: req.ContextRef,
		Caller:     me,
	}
	isParticipant := false
	for _, p := range req.Participants {
		if p.ID == me.ID {
			isParticipant = true
		}
		open.Participants = append(open.Participants, models.Participant{
			ID:   p.ID,
			Role: agreement.Role(p.Role),
		})
	}
	if !isParticipant {
		utils.ForbiddenResponse(c, "You can only open conversations you take part in")
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	conv, created, err := h.service.OpenConversation(ctx, open)
	if err != nil {
		respondError(c, err, "open conversation")
		return
	}

	if created {
		utils.CreatedResponse(c, "Conversation opened", conv.ViewFor(me.ID))
		return
	}
	utils.SuccessResponse(c, conv.ViewFor(me.ID))
}

func (h *NegotiationHandler) GetConversation(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	ctx, cancel := h.context(c)
	defer cancel()

	conv, err := h.service.GetConversation(ctx, c.Param("id"), userID)
	if err != nil {
		respondError(c, err, "get conversation")
		return
	}
	utils.SuccessResponse(c, conv.ViewFor(userID))
}

// ListMessages returns a page of the transcript. ?offset= and ?limit= page it.
func (h *NegotiationHandler) ListMessages(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	offset, limit := h.pagination(c)

	ctx, cancel := h.context(c)
	defer cancel()

	messages, total, err := h.service.ListMessages(ctx, c.Param("id"), userID, offset, limit)
	if err != nil {
		respondError(c, err, "list messages")
		return
	}
	utils.SuccessResponseWithMeta(c, messages, &utils.Meta{
		Offset: offset,
		Limit:  limit,
		Total:  total,
	})
}

func (h *NegotiationHandler) SendMessage(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	msg, err := h.service.Send(ctx, c.Param("id"), userID, req.Text)
	if err != nil {
		respondError(c, err, "send message")
		return
	}
	utils.CreatedResponse(c, "Message sent", msg.View(agreement.StatusNegotiating))
}

// ToggleAgreement flips the caller's consent. Exchange chats pass the endorsed
// message_id.
func (h *NegotiationHandler) ToggleAgreement(c *gin.Context) {
	me := sessionCaller(c)

	var req toggleAgreementRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	ctx, cancel := h.context(c)
	defer cancel()

	conv, err := h.service.ToggleAgreement(ctx, c.Param("id"), me, req.MessageID)
	if err != nil {
		respondError(c, err, "toggle agreement")
		return
	}

	message := "Agreement updated"
	if conv.Status == agreement.StatusAgreed {
		message = "Both sides agreed"
	}
	utils.SuccessResponseWithMessage(c, message, conv.ViewFor(me.ID))
}

func (h *NegotiationHandler) GetContacts(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	ctx, cancel := h.context(c)
	defer cancel()

	card, err := h.service.SharedContacts(ctx, c.Param("id"), userID)
	if err != nil {
		respondError(c, err, "get contacts")
		return
	}
	utils.SuccessResponse(c, card)
}

func (h *NegotiationHandler) CloseConversation(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	var req closeConversationRequest
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

	ctx, cancel := h.context(c)
	defer cancel()

	conv, err := h.service.Close(ctx, c.Param("id"), userID, req.Reason)
	if err != nil {
		respondError(c, err, "close conversation")
		return
	}
	utils.SuccessResponseWithMessage(c, "Conversation closed", conv.ViewFor(userID))
}

// GetMyViolations returns the caller's violation counter. ?channel= selects
// the variant when counters are kept per channel.
func (h *NegotiationHandler) GetMyViolations(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	channel, ok := channelParam(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid channel")
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	record, err := h.service.ViolationStatus(ctx, userID, channel)
	if err != nil {
		respondError(c, err, "get violation status")
		return
	}
	utils.SuccessResponse(c, record)
}

func (h *NegotiationHandler) pagination(c *gin.Context) (offset, limit int) {
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(h.pageSize)))
	if err != nil || limit <= 0 {
		limit = h.pageSize
	}
	if h.maxPageSize > 0 && limit > h.maxPageSize {
		limit = h.maxPageSize
	}
	return offset, limit
}
