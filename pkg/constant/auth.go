package constant

const (
	INVALID_REQUEST = "Invalid request payload"
	INVALID_TOKEN   = "Invalid or expired token"
	TOKEN_EXPIRED   = "Token expired"
	TOKEN_REQUIRED  = "Token is required"
	MALFORMED_TOKEN = "Invalid/Malformed auth token"
)
