package services

import (
	"errors"
	"fmt"
)

// Send rejections. Send returns them wrapped in a *SendError.
var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrMessageTooLong  = errors.New("message is too long")
	ErrChannelLocked   = errors.New("conversation no longer accepts messages")
	ErrPolicyWarning   = errors.New("message blocked by the off-platform policy")
	ErrSenderSuspended = errors.New("sender is suspended")
	ErrNotParticipant  = errors.New("not a participant of this conversation")
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrInvalidConversation  = errors.New("invalid conversation")
	ErrContactsHidden       = errors.New("contacts are shared only after agreement")
	ErrRoleMismatch         = errors.New("role does not match the caller's identity")
)

var reasonCodes = map[error]string{
	ErrEmptyMessage:    "empty_message",
	ErrMessageTooLong:  "message_too_long",
	ErrChannelLocked:   "channel_locked",
	ErrPolicyWarning:   "policy_warning",
	ErrSenderSuspended: "sender_suspended",
	ErrNotParticipant:  "not_participant",
}

const (
	noticeEmpty     = "Message cannot be empty."
	noticeTooLong   = "Message is too long."
	noticeLocked    = "This chat is locked. No more messages can be sent in this conversation."
	noticeSuspended = "Your chat access has been permanently restricted after repeated attempts to share contact details or move the conversation off Venty."
	noticeOutsider  = "You are not part of this conversation."
)

func warningNotice(term string) string {
	return fmt.Sprintf("Your message was not sent because it contains a %q reference. "+
		"Contact details can only be shared after both sides agree. "+
		"This is your only warning: another attempt will restrict your chat.", term)
}

// SendError is a rejected Send. errors.Is matches it against its Reason.
type SendError struct {
	Reason error
	// Notice is the text to show the sender.
	Notice         string
	MatchedTerm    string
	ViolationCount int64
}

func (e *SendError) Error() string {
	if e.MatchedTerm != "" {
		return fmt.Sprintf("%v (matched %q)", e.Reason, e.MatchedTerm)
	}
	return e.Reason.Error()
}

func (e *SendError) Unwrap() error { return e.Reason }

// Code is the stable machine-readable reason, e.g. "policy_warning".
func (e *SendError) Code() string {
	if code, ok := reasonCodes[e.Reason]; ok {
		return code
	}
	return "send_failed"
}

func rejectSend(reason error, notice string) *SendError {
	return &SendError{Reason: reason, Notice: notice}
}
