package tgui

import "strings"

// Data formats inline callback data as "namespace:action:payload".
// Payload is kept as-is and may itself contain ':'.
func Data(namespace, action, payload string) string {
	namespace = strings.TrimSpace(namespace)
	action = strings.TrimSpace(action)
	if payload == "" {
		return namespace + ":" + action
	}
	return namespace + ":" + action + ":" + payload
}

// CallbackData is a parsed "namespace:action:payload" string.
type CallbackData struct {
	Namespace string
	Action    string
	Payload   string
}

// ParseData splits callback data built by Data. ok is false when data is too
// long for Telegram or has no action part.
func ParseData(data string) (CallbackData, bool) {
	if len(data) == 0 || len(data) > MaxCallbackDataLen {
		return CallbackData{}, false
	}
	parts := strings.SplitN(data, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return CallbackData{}, false
	}
	cd := CallbackData{Namespace: parts[0], Action: parts[1]}
	if len(parts) == 3 {
		cd.Payload = parts[2]
	}
	return cd, true
}

// CheckData returns ErrCallbackDataTooLong when data exceeds Telegram's limit.
func CheckData(data string) error {
	if len(data) > MaxCallbackDataLen {
		return ErrCallbackDataTooLong
	}
	return nil
}
