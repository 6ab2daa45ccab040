package reservation

import "strings"

// EventKind is the closed set of booking events we act on.
type EventKind string

const (
	KindCreate  EventKind = "create"
	KindModify  EventKind = "modify"
	KindCancel  EventKind = "cancel"
	KindUnknown EventKind = "unknown"
)

// ClassifyEvent maps the free-text upstream event label by case-insensitive substring.
// CANCEL is checked before MODIF and CREAT.
func ClassifyEvent(label string) EventKind {
	up := strings.ToUpper(label)
	switch {
	case strings.Contains(up, "CANCEL"):
		return KindCancel
	case strings.Contains(up, "MODIF"):
		return KindModify
	case strings.Contains(up, "CREAT"):
		return KindCreate
	default:
		return KindUnknown
	}
}
