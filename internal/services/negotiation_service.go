package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"venty/internal/agreement"
	"venty/internal/metrics"
	"venty/internal/models"
	"venty/internal/moderation"
	"venty/internal/violation"
	"venty/pkg/logger"

	"github.com/google/uuid"
)

// Conversation events published to a Notifier.
const (
	EventMessage   = "message"
	EventAgreement = "agreement"
	EventStatus    = "status"
)

// DefaultMaxMessageLength is used when Options.MaxMessageLength is unset.
const DefaultMaxMessageLength = 2000

// Notifier receives conversation events for live subscribers.
type Notifier interface {
	Publish(conversationID, event string, payload interface{})
}

type nopNotifier struct{}

func (nopNotifier) Publish(string, string, interface{}) {}

type Options struct {
	MaxMessageLength int
	// DisplayLocation is the zone of Message.TimestampDisplay. Defaults to UTC.
	DisplayLocation *time.Location
	Notifier        Notifier
}

// OpenRequest describes the conversation to get or create. Participants name
// the pair and their roles; any display name or contact on them is ignored.
// Each side's identity is recorded from its own Caller when it acts.
type OpenRequest struct {
	Variant      agreement.Variant
	ContextRef   string
	Participants []models.Participant
	Caller       Caller
}

// Caller is an authenticated user as the identity service describes them.
// An empty Role means the identity service asserted none.
type Caller struct {
	ID          string
	Role        string
	DisplayName string
	Contact     models.Contact
}

// mayActAs reports whether the caller's asserted role allows taking part as
// role. Any app user may barter as a peer.
func (c Caller) mayActAs(role agreement.Role) bool {
	switch agreement.Role(c.Role) {
	case "", role:
		return true
	case agreement.RoleUser:
		return role == agreement.RolePeer
	}
	return false
}

// bindCaller checks caller against their participant entry and fills the
// display name and contact the entry is still missing. It reports whether the
// entry changed.
func bindCaller(conv *models.Conversation, caller Caller) (bool, error) {
	p, ok := conv.Participant(caller.ID)
	if !ok {
		return false, ErrNotParticipant
	}
	if !caller.mayActAs(p.Role) {
		return false, fmt.Errorf("%w: %q cannot act as %s", ErrRoleMismatch, caller.Role, p.Role)
	}

	changed := false
	if p.DisplayName == "" && caller.DisplayName != "" {
		p.DisplayName = caller.DisplayName
		changed = true
	}
	if p.Contact.IsZero() && !caller.Contact.IsZero() {
		p.Contact = caller.Contact
		changed = true
	}
	return changed, nil
}

// NegotiationService runs the negotiation protocol: moderated sends, the
// agreement state machine and contact disclosure.
type NegotiationService struct {
	store      ConversationStore
	filter     *moderation.Filter
	violations *violation.Counter
	notifier   Notifier
	locks      *keyedMutex

	maxMessageLength int
	location         *time.Location
	now              func() time.Time
	newID            func() string
}

func NewNegotiationService(store ConversationStore, filter *moderation.Filter, violations *violation.Counter, opts Options) *NegotiationService {
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = DefaultMaxMessageLength
	}
	if opts.DisplayLocation == nil {
		opts.DisplayLocation = time.UTC
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	return &NegotiationService{
		store:            store,
		filter:           filter,
		violations:       violations,
		notifier:         opts.Notifier,
		locks:            newKeyedMutex(),
		maxMessageLength: opts.MaxMessageLength,
		location:         opts.DisplayLocation,
		now:              time.Now,
		newID:            uuid.NewString,
	}
}

// SetNotifier replaces the event sink.
func (s *NegotiationService) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}

// OpenConversation returns the active conversation for the request's context
// and participant pair, creating it if needed. created reports whether a new
// conversation was stored.
func (s *NegotiationService) OpenConversation(ctx context.Context, req OpenRequest) (conv *models.Conversation, created bool, err error) {
	if err := validateOpenRequest(req); err != nil {
		return nil, false, err
	}

	pairKey := models.PairKey(req.Variant, req.ContextRef, req.Participants[0].ID, req.Participants[1].ID)
	unlock := s.locks.Lock("open:" + pairKey)
	defer unlock()

	existing, err := s.store.FindActiveConversation(ctx, pairKey)
	if err == nil {
		conv, err := s.join(ctx, existing.ID, req.Caller)
		return conv, false, err
	}
	if !errors.Is(err, ErrConversationNotFound) {
		return nil, false, err
	}

	now := s.now()
	conv = &models.Conversation{
		ID:         s.newID(),
		Variant:    req.Variant,
		ContextRef: req.ContextRef,
		PairKey:    pairKey,
		Status:     agreement.StatusNegotiating,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, p := range req.Participants {
		conv.Participants = append(conv.Participants, models.Participant{ID: p.ID, Role: p.Role})
	}
	if _, err := bindCaller(conv, req.Caller); err != nil {
		return nil, false, err
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, false, err
	}

	metrics.ConversationsOpened.WithLabelValues(string(conv.Variant)).Inc()
	logger.LogNegotiationEvent("conversation_opened", conv.ID, "", map[string]interface{}{
		"variant":     conv.Variant,
		"context_ref": conv.ContextRef,
	})
	return conv, true, nil
}

// join returns an existing conversation to caller, recording their identity on
// it while it is still open.
func (s *NegotiationService) join(ctx context.Context, conversationID string, caller Caller) (*models.Conversation, error) {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	changed, err := bindCaller(conv, caller)
	if err != nil {
		return nil, err
	}
	if changed && conv.IsOpen() {
		conv.UpdatedAt = s.now()
		if err := s.store.UpdateConversation(ctx, conv); err != nil {
			return nil, err
		}
	}
	return conv, nil
}

func validateOpenRequest(req OpenRequest) error {
	if !req.Variant.IsValid() {
		return fmt.Errorf("%w: unknown variant %q", ErrInvalidConversation, req.Variant)
	}
	if len(req.Participants) != 2 {
		return fmt.Errorf("%w: exactly two participants required", ErrInvalidConversation)
	}
	a, b := req.Participants[0], req.Participants[1]
	if a.ID == "" || b.ID == "" || a.ID == b.ID {
		return fmt.Errorf("%w: participants need two distinct ids", ErrInvalidConversation)
	}

	switch req.Variant {
	case agreement.VariantUnified:
		roles := map[agreement.Role]bool{a.Role: true, b.Role: true}
		if !roles[agreement.RoleUser] || !roles[agreement.RoleMerchant] {
			return fmt.Errorf("%w: unified chat needs a user and a merchant", ErrInvalidConversation)
		}
	case agreement.VariantExchange:
		if a.Role != agreement.RolePeer || b.Role != agreement.RolePeer {
			return fmt.Errorf("%w: exchange chat needs two peers", ErrInvalidConversation)
		}
	}
	return nil
}

// GetConversation returns the conversation if viewerID takes part in it.
func (s *NegotiationService) GetConversation(ctx context.Context, conversationID, viewerID string) (*models.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if _, ok := conv.Participant(viewerID); !ok {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// ListMessages returns a page of the transcript with display text selected for
// the conversation's current status.
func (s *NegotiationService) ListMessages(ctx context.Context, conversationID, viewerID string, offset, limit int) ([]models.MessageView, int64, error) {
	conv, err := s.GetConversation(ctx, conversationID, viewerID)
	if err != nil {
		return nil, 0, err
	}
	if offset < 0 {
		offset = 0
	}

	messages, total, err := s.store.ListMessages(ctx, conversationID, offset, limit)
	if err != nil {
		return nil, 0, err
	}

	views := make([]models.MessageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, m.View(conv.Status))
	}
	return views, total, nil
}

// Send appends rawText from senderID after the channel, suspension, content
// and off-platform checks. Every rejection is a *SendError and leaves the
// transcript unchanged.
func (s *NegotiationService) Send(ctx context.Context, conversationID, senderID, rawText string) (*models.Message, error) {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if !conv.IsOpen() {
		return nil, s.reject(conv, senderID, rejectSend(ErrChannelLocked, noticeLocked))
	}
	sender, ok := conv.Participant(senderID)
	if !ok {
		return nil, s.reject(conv, senderID, rejectSend(ErrNotParticipant, noticeOutsider))
	}

	channel := string(conv.Variant)
	disabled, err := s.violations.IsDisabled(ctx, senderID, channel)
	if err != nil {
		return nil, err
	}
	if disabled {
		return nil, s.reject(conv, senderID, rejectSend(ErrSenderSuspended, noticeSuspended))
	}

	text := strings.TrimSpace(rawText)
	if text == "" {
		return nil, s.reject(conv, senderID, rejectSend(ErrEmptyMessage, noticeEmpty))
	}
	if utf8.RuneCountInString(text) > s.maxMessageLength {
		return nil, s.reject(conv, senderID, rejectSend(ErrMessageTooLong, noticeTooLong))
	}

	if detection := s.filter.Detect(rawText); detection.Blocked {
		return nil, s.blockOffPlatform(ctx, conv, senderID, channel, detection)
	}

	msg := &models.Message{
		ID:             s.newID(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		SenderRole:     sender.Role,
		Type:           models.MessageTypeText,
		TextRaw:        rawText,
		TextClean:      s.filter.Sanitize(rawText),
	}
	if err := s.appendMessage(ctx, conv, msg); err != nil {
		return nil, err
	}

	metrics.MessagesSent.WithLabelValues(channel).Inc()
	return msg, nil
}

func (s *NegotiationService) blockOffPlatform(ctx context.Context, conv *models.Conversation, senderID, channel string, d moderation.Detection) error {
	count, err := s.violations.RecordViolation(ctx, senderID, channel)
	if err != nil {
		return err
	}
	metrics.OffPlatformAttempts.WithLabelValues(d.Reason).Inc()

	sendErr := &SendError{
		MatchedTerm:    d.MatchedTerm,
		ViolationCount: count,
	}
	if count >= s.violations.SuspendAfter() {
		sendErr.Reason = ErrSenderSuspended
		sendErr.Notice = noticeSuspended
		metrics.Suspensions.Inc()
	} else {
		sendErr.Reason = ErrPolicyWarning
		sendErr.Notice = warningNotice(d.MatchedTerm)
	}

	logger.LogSecurityEvent(sendErr.Code(), senderID, "", map[string]interface{}{
		"conversation_id": conv.ID,
		"channel":         channel,
		"matched_term":    d.MatchedTerm,
		"detection":       d.Reason,
		"violation_count": count,
	})
	metrics.SendRejections.WithLabelValues(sendErr.Code()).Inc()
	return sendErr
}

func (s *NegotiationService) reject(conv *models.Conversation, senderID string, err *SendError) error {
	metrics.SendRejections.WithLabelValues(err.Code()).Inc()
	logger.LogNegotiationEvent("send_rejected", conv.ID, senderID, map[string]interface{}{
		"reason": err.Code(),
	})
	return err
}

func (s *NegotiationService) stamp(msg *models.Message) {
	now := s.now()
	msg.Timestamp = now
	msg.TimestampDisplay = now.In(s.location).Format(models.DisplayTimeLayout)
}

func (s *NegotiationService) appendMessage(ctx context.Context, conv *models.Conversation, msg *models.Message) error {
	s.stamp(msg)
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return err
	}
	s.notifier.Publish(conv.ID, EventMessage, msg.View(conv.Status))
	return nil
}

// ToggleAgreement changes the consent of caller. messageID names the endorsed
// deal message in exchange conversations and is ignored otherwise. On the
// transition to agreed the conversation locks and contacts are disclosed.
func (s *NegotiationService) ToggleAgreement(ctx context.Context, conversationID string, caller Caller, messageID string) (*models.Conversation, error) {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if _, ok := conv.Participant(caller.ID); !ok {
		return nil, ErrNotParticipant
	}
	switch conv.Status {
	case agreement.StatusClosed:
		return conv, ErrChannelLocked
	case agreement.StatusAgreed:
		return conv, agreement.ErrLocked
	}
	if _, err := bindCaller(conv, caller); err != nil {
		return nil, err
	}
	participant, _ := conv.Participant(caller.ID)

	if conv.Variant == agreement.VariantExchange && messageID != "" {
		if _, err := s.store.GetMessage(ctx, conv.ID, messageID); err != nil {
			if errors.Is(err, ErrMessageNotFound) {
				return conv, fmt.Errorf("%w: %w", agreement.ErrInvalidToggle, err)
			}
			return nil, err
		}
	}

	policy, err := agreement.NewPolicy(conv.Variant, &conv.Agreement, conv.ParticipantIDs())
	if err != nil {
		return nil, err
	}
	status, err := policy.Toggle(agreement.Toggle{
		ParticipantID: caller.ID,
		Role:          participant.Role,
		MessageID:     messageID,
	})
	if err != nil {
		return conv, err
	}

	now := s.now()
	conv.UpdatedAt = now
	reached := status == agreement.StatusAgreed
	var reveal *models.Message
	if reached {
		conv.Status = agreement.StatusAgreed
		conv.AgreedAt = &now
		// A failed reveal write leaves the stored conversation negotiating.
		if reveal, err = s.recordReveal(ctx, conv); err != nil {
			logger.LogError(err, "failed to append disclosure message", map[string]interface{}{
				"conversation_id": conv.ID,
			})
			return nil, fmt.Errorf("disclose contacts: %w", err)
		}
	}
	if err := s.store.UpdateConversation(ctx, conv); err != nil {
		return nil, err
	}

	metrics.AgreementToggles.WithLabelValues(string(conv.Variant)).Inc()
	logger.LogNegotiationEvent("agreement_toggled", conv.ID, caller.ID, map[string]interface{}{
		"status":     conv.Status,
		"message_id": messageID,
	})
	s.notifier.Publish(conv.ID, EventAgreement, agreementPayload(conv))

	if reached {
		s.announceReveal(conv, reveal)
	}
	return conv, nil
}

func agreementPayload(conv *models.Conversation) map[string]interface{} {
	return map[string]interface{}{
		"conversation_id": conv.ID,
		"status":          conv.Status,
		"agreement":       conv.Agreement,
	}
}

// revealMessageID is fixed per conversation so a retried transition finds the
// disclosure message of an earlier attempt instead of writing a second one.
func revealMessageID(conversationID string) string {
	return "reveal-" + conversationID
}

// recordReveal stores the disclosure message of a unified conversation that
// is reaching agreement. Exchange chats expose the contact card through
// SharedContacts and get no message.
func (s *NegotiationService) recordReveal(ctx context.Context, conv *models.Conversation) (*models.Message, error) {
	if conv.Variant != agreement.VariantUnified {
		return nil, nil
	}

	id := revealMessageID(conv.ID)
	existing, err := s.store.GetMessage(ctx, conv.ID, id)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrMessageNotFound) {
		return nil, err
	}

	text := revealText(conv)
	msg := &models.Message{
		ID:             id,
		ConversationID: conv.ID,
		SenderID:       string(models.RoleSystem),
		SenderRole:     models.RoleSystem,
		Type:           models.MessageTypeSystem,
		TextRaw:        text,
		TextClean:      s.filter.Sanitize(text),
	}
	s.stamp(msg)
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *NegotiationService) announceReveal(conv *models.Conversation, reveal *models.Message) {
	metrics.AgreementsReached.WithLabelValues(string(conv.Variant)).Inc()
	logger.LogNegotiationEvent("agreement_reached", conv.ID, "", map[string]interface{}{
		"variant": conv.Variant,
	})
	if reveal != nil {
		s.notifier.Publish(conv.ID, EventMessage, reveal.View(conv.Status))
	}
	s.notifier.Publish(conv.ID, EventStatus, agreementPayload(conv))
}

func revealText(conv *models.Conversation) string {
	var b strings.Builder
	b.WriteString("Both sides agreed. Contact details are now shared:")
	for _, p := range conv.Participants {
		fmt.Fprintf(&b, "\n%s (%s): %s", p.DisplayName, p.Role, contactLine(p.Contact))
	}
	return b.String()
}

func contactLine(c models.Contact) string {
	parts := make([]string, 0, 2)
	if c.Phone != "" {
		parts = append(parts, c.Phone)
	}
	if c.Email != "" {
		parts = append(parts, c.Email)
	}
	if len(parts) == 0 {
		return "no contact on file"
	}
	return strings.Join(parts, ", ")
}

// SharedContacts returns the contact card of an agreed conversation. It is
// only reachable through the agreed status.
func (s *NegotiationService) SharedContacts(ctx context.Context, conversationID, viewerID string) (*models.ContactCard, error) {
	conv, err := s.GetConversation(ctx, conversationID, viewerID)
	if err != nil {
		return nil, err
	}
	if conv.Status != agreement.StatusAgreed || conv.AgreedAt == nil {
		return nil, ErrContactsHidden
	}

	card := &models.ContactCard{
		ConversationID: conv.ID,
		AgreedAt:       *conv.AgreedAt,
		Contacts:       make([]models.SharedContact, 0, len(conv.Participants)),
	}
	for _, p := range conv.Participants {
		card.Contacts = append(card.Contacts, models.SharedContact{
			ParticipantID: p.ID,
			Role:          p.Role,
			DisplayName:   p.DisplayName,
			Phone:         p.Contact.Phone,
			Email:         p.Contact.Email,
		})
	}
	return card, nil
}

// Close abandons a negotiating conversation on behalf of a participant.
func (s *NegotiationService) Close(ctx context.Context, conversationID, participantID, reason string) (*models.Conversation, error) {
	if reason == "" {
		reason = "abandoned"
	}
	return s.close(ctx, conversationID, participantID, reason, "participant")
}

// CloseByAdmin is the external cancellation path.
func (s *NegotiationService) CloseByAdmin(ctx context.Context, conversationID, adminID, reason string) (*models.Conversation, error) {
	if reason == "" {
		reason = "cancelled"
	}
	return s.close(ctx, conversationID, adminID, reason, "admin")
}

func (s *NegotiationService) close(ctx context.Context, conversationID, actorID, reason, by string) (*models.Conversation, error) {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if by == "participant" {
		if _, ok := conv.Participant(actorID); !ok {
			return nil, ErrNotParticipant
		}
	}
	if !conv.IsOpen() {
		return conv, ErrChannelLocked
	}

	now := s.now()
	conv.Status = agreement.StatusClosed
	conv.ClosedAt = &now
	conv.CloseReason = reason
	conv.UpdatedAt = now
	if err := s.store.UpdateConversation(ctx, conv); err != nil {
		return nil, err
	}

	metrics.ConversationsClosed.WithLabelValues(by).Inc()
	logger.LogNegotiationEvent("conversation_closed", conv.ID, actorID, map[string]interface{}{
		"reason": reason,
		"by":     by,
	})
	s.notifier.Publish(conv.ID, EventStatus, agreementPayload(conv))
	return conv, nil
}

// ViolationStatus returns the violation counter of userID for channel.
func (s *NegotiationService) ViolationStatus(ctx context.Context, userID string, channel agreement.Variant) (violation.Record, error) {
	return s.violations.Status(ctx, userID, string(channel))
}

// ResetViolations clears the counter of userID for channel.
func (s *NegotiationService) ResetViolations(ctx context.Context, userID string, channel agreement.Variant) error {
	if err := s.violations.Reset(ctx, userID, string(channel)); err != nil {
		return err
	}
	metrics.ViolationResets.Inc()
	return nil
}
