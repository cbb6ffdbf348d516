package autoreply

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/wasender/pkg/constant"
	"github.com/wasender/pkg/entities"
)

var placeholderPattern = regexp.MustCompile(`\{[\p{L}_][\p{L}\p{N}_]*\}`)

type field struct {
	key      string
	custom   string
	fallback string
}

// topicFields are the event attributes agents may reference. custom names
// the topic custom field the value comes from.
var topicFields = []field{
	{key: "min_age", custom: "minAge", fallback: constant.NOT_SPECIFIED},
	{key: "max_age", custom: "maxAge", fallback: constant.NOT_SPECIFIED},
	{key: "location", custom: "location", fallback: constant.NOT_SPECIFIED},
	{key: "price", custom: "price", fallback: constant.NOT_SPECIFIED},
	{key: "venue_name", custom: "venueName", fallback: ""},
	{key: "address", custom: "address", fallback: constant.NOT_SPECIFIED},
	{key: "parking_info", custom: "parkingInfo", fallback: "אין מידע על חניה"},
	{key: "accessibility", custom: "accessibility", fallback: "אין מידע על נגישות"},
	{key: "age_restriction", custom: "ageRestriction", fallback: "אין הגבלת גיל"},
	{key: "ticket_types", custom: "ticketTypes", fallback: constant.NOT_SPECIFIED},
	{key: "vip_price", custom: "vipPrice", fallback: constant.NOT_SPECIFIED},
	{key: "regular_price", custom: "regularPrice", fallback: constant.NOT_SPECIFIED},
	{key: "student_price", custom: "studentPrice", fallback: constant.NOT_SPECIFIED},
	{key: "group_discount", custom: "groupDiscount", fallback: "אין הנחת קבוצות"},
	{key: "start_time", custom: "startTime", fallback: constant.NOT_SPECIFIED},
	{key: "end_time", custom: "endTime", fallback: constant.NOT_SPECIFIED},
	{key: "performers", custom: "performers", fallback: "כרגע בהפתעה"},
	{key: "special_guests", custom: "specialGuests", fallback: ""},
	{key: "program", custom: "program", fallback: "אין מידע על התוכנית"},
	{key: "dress_code", custom: "dressCode", fallback: "אין קוד לבוש מיוחד"},
	{key: "food_drinks", custom: "foodDrinks", fallback: "אין מידע על אוכל ושתייה"},
	{key: "kosher_info", custom: "kosherInfo", fallback: "אין מידע על כשרות"},
}

// BuildMetadata merges topic and agent attributes into the flat map sent to
// the agent and used for placeholder substitution. A nil topic or agent
// yields the fallback for every field it would have provided.
func BuildMetadata(topicID, agentID string, topic *entities.Topic, agent *entities.VirtualAgent) map[string]string {
	meta := map[string]string{
		"eventId": topicID,
		"agentId": agentID,
	}

	var custom map[string]string
	if topic != nil {
		custom = topic.CustomFields
	}
	for _, f := range topicFields {
		meta[f.key] = or(custom[f.custom], f.fallback)
	}

	if topic != nil {
		meta["event_name"] = or(topic.EventName, constant.DEFAULT_EVENT)
		meta["event_date"] = or(topic.EventDate, constant.NOT_SPECIFIED)
		meta["event_info"] = or(topic.EventInfo, constant.NO_EXTRA_INFO)
		meta["event_link"] = or(topic.EventLink, constant.NOT_SPECIFIED)
		mergeCustom(meta, topic.CustomFields)
	} else {
		meta["event_name"] = constant.DEFAULT_EVENT
		meta["event_date"] = constant.NOT_SPECIFIED
		meta["event_info"] = constant.NO_EXTRA_INFO
		meta["event_link"] = constant.NOT_SPECIFIED
	}

	if agent != nil {
		meta["agent_name"] = or(agent.Name, constant.DEFAULT_AGENT)
		meta["communication_style"] = or(agent.CommunicationStyle, constant.NOT_SPECIFIED)
		meta["knowledge_area"] = or(agent.KnowledgeArea, constant.NOT_SPECIFIED)
		mergeCustom(meta, agent.CustomFields)
	} else {
		meta["agent_name"] = constant.DEFAULT_AGENT
		meta["communication_style"] = constant.NOT_SPECIFIED
		meta["knowledge_area"] = constant.NOT_SPECIFIED
	}
	return meta
}

// mergeCustom adds extra custom fields under their snake_case name without
// overriding known keys.
func mergeCustom(meta, custom map[string]string) {
	for k, v := range custom {
		key := snake(k)
		if _, taken := meta[key]; taken || v == "" {
			continue
		}
		meta[key] = v
	}
}

// Render substitutes every {key} token with its metadata value. Tokens
// without a value become the generic fallback, so none survive.
func Render(text string, meta map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(tok string) string {
		if v, ok := meta[tok[1:len(tok)-1]]; ok {
			return v
		}
		return constant.NOT_SPECIFIED
	})
}

func or(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
