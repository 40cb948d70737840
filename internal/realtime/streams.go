package realtime

import "strings"

// Events published on family streams.
const (
	EventOnline = "presence.online"
	EventPong   = "pong"
)

const familyStreamPrefix = "family."

// FamilyStream names the presence stream shared by members of one family.
func FamilyStream(familyID string) string {
	familyID = strings.TrimSpace(familyID)
	if familyID == "" {
		return ""
	}
	return familyStreamPrefix + strings.ToLower(familyID)
}
