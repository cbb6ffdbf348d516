package whatsapp

import (
	"errors"
	"strings"

	"github.com/wasender/pkg/constant"
)

var (
	ErrNotConnected        = errors.New(constant.WHATSAPP_NOT_CONNECTED)
	ErrInvalidRecipient    = errors.New(constant.INVALID_PHONE_NUMBER)
	ErrRecipientNotFound   = errors.New(constant.CHAT_NOT_FOUND)
	ErrSendFailed          = errors.New(constant.SEND_FAILED)
	ErrEmptyMessage        = errors.New(constant.EMPTY_MESSAGE)
	ErrAuthFailure         = errors.New(constant.AUTH_FAILED)
	ErrTransientDisconnect = errors.New(constant.CONNECTION_LOST)
	ErrStartupTimeout      = errors.New(constant.STARTUP_TIMEOUT)
	ErrInvalidSessionID    = errors.New(constant.INVALID_SESSION_ID)
	ErrNoQRCode            = errors.New(constant.QR_NOT_AVAILABLE)
	ErrAlreadyConnected    = errors.New(constant.WHATSAPP_ALREADY_READY)
	ErrTornDown            = errors.New("session torn down")
)

// recoverableSignatures are transport error fragments that mean the link
// dropped but the credentials are still good.
var recoverableSignatures = []string{
	"websocket",
	"keepalive",
	"connection reset",
	"broken pipe",
	"eof",
	"stream replaced",
	"stream error",
	"i/o timeout",
	"target closed",
	"browser disconnected",
}

// IsRecoverable reports whether err should go through reconnection rather
// than being logged and ignored.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransientDisconnect) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range recoverableSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether a failed Send is worth repeating as is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSendFailed)
}
