package constant

const (
	SENDING_STARTED    = "Background sending started"
	SENDING_QUEUED     = "Number limit reached, job queued"
	SENDING_STOPPED    = "Background sending stopped"
	SENDING_RESET      = "Sending state reset"
	ALREADY_SENDING    = "A sending job is already running for this number"
	NO_RECIPIENTS      = "At least one recipient is required"
	SENDING_NOT_FOUND  = "No sending job found for this number"
	AUTO_REPLY_ENABLED = "Auto reply enabled"
	AUTO_REPLY_OFF     = "Auto reply disabled"
)
