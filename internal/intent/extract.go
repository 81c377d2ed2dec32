package intent

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	numberRe  = regexp.MustCompile(`(\d+)`)
	byRe      = regexp.MustCompile(`by\s+([^,\n]+)`)
	toRe      = regexp.MustCompile(`to\s+([^,\n]+)`)
	urlRe     = regexp.MustCompile(`https?://[^\s]+`)
	pathRe    = regexp.MustCompile(`[/\\][\w\s/\\.-]+`)
	pinRe     = regexp.MustCompile(`pin\s*(\d+)|gpio\s*(\d+)`)
	hwValueRe = regexp.MustCompile(`to\s+(\d+)|value\s+(\d+)|(\d+)%`)
)

// ExtractParameters pulls the parameters an intent's executor needs
// out of preprocessed command text.
func ExtractParameters(text string, t Type) map[string]any {
	switch t {
	case AudioControl:
		return extractAudio(text)
	case SystemControl:
		return extractSystem(text)
	case SmartHome:
		return extractSmartHome(text)
	case Communication:
		return extractCommunication(text)
	case Navigation:
		return extractNavigation(text)
	case Information:
		return extractInformation(text)
	case FileOperation:
		return extractFile(text)
	case HardwareControl:
		return extractHardware(text)
	default:
		return map[string]any{}
	}
}

func firstContained(text string, candidates []string) (string, bool) {
	for _, c := range candidates {
		if strings.Contains(text, c) {
			return c, true
		}
	}
	return "", false
}

func extractAudio(text string) map[string]any {
	params := map[string]any{}

	actionKeywords := []struct {
		action   string
		keywords []string
	}{
		{"play", []string{"play", "start", "begin"}},
		{"pause", []string{"pause", "hold"}},
		{"stop", []string{"stop", "end", "quit"}},
		{"volume", []string{"volume", "loud", "quiet", "mute", "unmute"}},
		{"skip", []string{"skip", "next", "previous"}},
		{"switch", []string{"switch", "change", "output"}},
	}
	for _, a := range actionKeywords {
		if _, ok := firstContained(text, a.keywords); ok {
			params["action"] = a.action
			break
		}
	}

	if m := numberRe.FindStringSubmatch(text); m != nil {
		if level, err := strconv.Atoi(m[1]); err == nil && level >= 0 && level <= 100 {
			params["level"] = level
		}
	}

	if device, ok := firstContained(text, []string{"headphones", "speakers", "bluetooth"}); ok {
		params["device"] = device
	}

	if m := byRe.FindStringSubmatch(text); m != nil {
		params["target"] = strings.TrimSpace(m[1])
	}
	return params
}

func extractSystem(text string) map[string]any {
	params := map[string]any{}
	actions := []string{"open", "close", "launch", "run", "start", "stop", "kill"}

	if action, ok := firstContained(text, actions); ok {
		params["action"] = action
	}

	// Everything after the action verb is the target.
	words := strings.Fields(text)
	for i, word := range words {
		for _, action := range actions {
			if word == action && i+1 < len(words) {
				params["target"] = strings.Join(words[i+1:], " ")
				return params
			}
		}
	}
	return params
}

func extractSmartHome(text string) map[string]any {
	params := map[string]any{}

	switch {
	case strings.Contains(text, "light"):
		params["device_type"] = "lights"
	case strings.Contains(text, "temperature"), strings.Contains(text, "thermostat"):
		params["device_type"] = "temperature"
	case strings.Contains(text, "lock"), strings.Contains(text, "door"):
		params["device_type"] = "security"
	case strings.Contains(text, "camera"):
		params["device_type"] = "camera"
	}

	if action, ok := firstContained(text, []string{"on", "off", "dim", "brighten", "lock", "unlock", "set"}); ok {
		params["action"] = action
	}
	if location, ok := firstContained(text, []string{"bedroom", "kitchen", "living room", "bathroom", "office", "garage"}); ok {
		params["location"] = location
	}
	if m := numberRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			params["value"] = v
		}
	}
	return params
}

func extractCommunication(text string) map[string]any {
	params := map[string]any{}

	if action, ok := firstContained(text, []string{"send", "call", "message", "notify"}); ok {
		params["action"] = action
	}
	if platform, ok := firstContained(text, []string{"sms", "email", "whatsapp", "telegram", "slack"}); ok {
		params["platform"] = platform
	}
	if m := toRe.FindStringSubmatch(text); m != nil {
		params["recipient"] = strings.TrimSpace(m[1])
	}
	return params
}

func extractNavigation(text string) map[string]any {
	params := map[string]any{}

	if m := toRe.FindStringSubmatch(text); m != nil {
		params["destination"] = strings.TrimSpace(m[1])
	}
	if mode, ok := firstContained(text, []string{"driving", "walking", "transit", "cycling"}); ok {
		params["mode"] = mode
	}
	return params
}

func extractInformation(text string) map[string]any {
	params := map[string]any{"query": text}

	switch {
	case strings.Contains(text, "weather"):
		params["type"] = "weather"
	case strings.Contains(text, "time"):
		params["type"] = "time"
	case strings.Contains(text, "news"):
		params["type"] = "news"
	default:
		params["type"] = "general"
	}
	return params
}

func extractFile(text string) map[string]any {
	params := map[string]any{}

	if action, ok := firstContained(text, []string{"download", "upload", "copy", "move", "delete", "create"}); ok {
		params["action"] = action
	}
	if m := urlRe.FindString(text); m != "" {
		params["source"] = m
	}
	if m := pathRe.FindString(text); m != "" {
		params["destination"] = m
	}
	return params
}

func extractHardware(text string) map[string]any {
	params := map[string]any{}

	if m := pinRe.FindStringSubmatch(text); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if pin, err := strconv.Atoi(raw); err == nil {
			params["pin"] = pin
		}
	}
	if action, ok := firstContained(text, []string{"on", "off", "toggle", "read", "write", "pwm"}); ok {
		params["action"] = action
	}
	if m := hwValueRe.FindStringSubmatch(text); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if raw == "" {
			raw = m[3]
		}
		if v, err := strconv.Atoi(raw); err == nil {
			params["value"] = v
		}
	}
	return params
}
