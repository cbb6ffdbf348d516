package constant

const (
	NOT_SPECIFIED     = "לא צוין"
	DEFAULT_AGENT     = "הנציג הווירטואלי"
	DEFAULT_EVENT     = "האירוע"
	NO_EXTRA_INFO     = "אין מידע נוסף"
	TOO_MANY_REQUESTS = "Too many requests"
)
