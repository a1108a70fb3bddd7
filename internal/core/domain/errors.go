package domain

import "errors"

var (
	ErrServerNotFound   = errors.New("server not found")
	ErrChannelNotFound  = errors.New("channel not found")
	ErrMessageNotFound  = errors.New("message not found")
	ErrMemberNotFound   = errors.New("member not found")
	ErrRoleNotFound     = errors.New("role not found")
	ErrWebhookNotFound  = errors.New("webhook not found")
	ErrChannelDeleted   = errors.New("channel deleted")
	ErrChannelNameTaken = errors.New("channel name already in use")
	ErrNicknameTaken    = errors.New("nickname already in use")
	ErrBanned           = errors.New("identity is banned from this server")
)
