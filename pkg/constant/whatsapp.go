package constant

const (
	WHATSAPP_DISCONNECTED = "WhatsApp disconnected successfully"
	WHATSAPP_INITIALIZING = "WhatsApp client initialization started"
	MESSAGE_SENT          = "Message sent successfully"
	QR_CODE_GENERATED     = "QR code generated successfully"
	STATUS_RETRIEVED      = "Status retrieved successfully"

	WHATSAPP_NOT_CONNECTED = "WhatsApp client is not connected"
	WHATSAPP_ALREADY_READY = "WhatsApp client already connected"
	INVALID_PHONE_NUMBER   = "Invalid phone number format"
	INVALID_SESSION_ID     = "Invalid session id"
	CHAT_NOT_FOUND         = "Chat not found for this number"
	SEND_FAILED            = "Failed to send message"
	EMPTY_MESSAGE          = "Message is required"
	QR_NOT_AVAILABLE       = "No QR code available yet. Please wait for QR generation."
	STARTUP_TIMEOUT        = "WhatsApp client startup timed out"
	AUTH_FAILED            = "WhatsApp authentication failed"
	CONNECTION_LOST        = "WhatsApp connection lost"
)
