package intent

// Schemas returns the built-in intent schemas keyed by intent type.
func Schemas() map[Type]Schema {
	return map[Type]Schema{
		AudioControl: {
			Intent: AudioControl,
			Keywords: []string{
				"play", "music", "song", "track", "album", "artist", "band",
				"volume", "loud", "quiet", "mute", "unmute", "louder", "quieter",
				"pause", "stop", "resume", "next", "previous", "skip",
				"headphones", "speakers", "bluetooth", "audio", "sound",
			},
			Parameters: []ParameterSpec{
				{Name: "action", Type: "string", Required: true,
					Choices:     []string{"play", "pause", "stop", "volume", "skip", "switch"},
					Description: "Audio control action"},
				{Name: "target", Type: "string",
					Description: "Target (song, artist, device, etc.)"},
				{Name: "level", Type: "integer",
					MinValue: floatPtr(0), MaxValue: floatPtr(100),
					Description: "Volume level (0-100)"},
				{Name: "device", Type: "string",
					Choices:     []string{"headphones", "speakers", "bluetooth"},
					Description: "Audio output device"},
			},
			Service:     "ai-audio-assistant",
			Tool:        "control_audio",
			Description: "Audio and music control commands",
			Examples: []string{
				"play music", "turn up the volume", "pause the song",
				"switch to headphones", "play jazz music",
			},
		},
		SystemControl: {
			Intent: SystemControl,
			Keywords: []string{
				"open", "close", "launch", "run", "execute", "start", "stop",
				"application", "app", "program", "software", "process", "task",
				"shutdown", "restart", "reboot", "sleep", "hibernate",
				"file", "folder", "directory", "document",
			},
			Parameters: []ParameterSpec{
				{Name: "action", Type: "string", Required: true,
					Choices:     []string{"open", "close", "launch", "run", "start", "stop", "kill"},
					Description: "System control action"},
				{Name: "target", Type: "string", Required: true,
					Description: "Target application or process"},
				{Name: "path", Type: "file_path",
					Description: "File or directory path"},
			},
			Service:     "ai-platform-linux",
			Tool:        "execute_command",
			Description: "System and application control",
			Examples: []string{
				"open browser", "launch calculator", "close all windows", "run python script",
			},
		},
		SmartHome: {
			Intent: SmartHome,
			Keywords: []string{
				"lights", "light", "lamp", "bulb", "brightness", "dim",
				"temperature", "thermostat", "heating", "cooling", "ac",
				"lock", "unlock", "door", "window", "security", "alarm",
				"camera", "sensor", "motion", "detection",
			},
			Parameters: []ParameterSpec{
				{Name: "device_type", Type: "string", Required: true,
					Choices:     []string{"lights", "temperature", "security", "camera"},
					Description: "Type of smart home device"},
				{Name: "action", Type: "string", Required: true,
					Choices:     []string{"on", "off", "dim", "brighten", "lock", "unlock", "set"},
					Description: "Action to perform"},
				{Name: "location", Type: "string",
					Description: "Room or location"},
				{Name: "value", Type: "integer",
					Description: "Value for dimming or temperature"},
			},
			Service:     "ai-home-automation",
			Tool:        "control_device",
			Description: "Smart home device control",
			Examples: []string{
				"turn on the lights", "dim the bedroom lights",
				"set temperature to 72", "lock the front door",
			},
		},
		Communication: {
			Intent: Communication,
			Keywords: []string{
				"send", "message", "text", "sms", "email", "call", "phone",
				"whatsapp", "telegram", "slack", "discord", "notify",
				"contact", "person", "friend", "family",
			},
			Parameters: []ParameterSpec{
				{Name: "action", Type: "string", Required: true,
					Choices:     []string{"send", "call", "message", "notify"},
					Description: "Communication action"},
				{Name: "recipient", Type: "string", Required: true,
					Description: "Recipient name or contact"},
				{Name: "message", Type: "string",
					Description: "Message content"},
				{Name: "platform", Type: "string",
					Choices:     []string{"sms", "email", "whatsapp", "telegram"},
					Description: "Communication platform"},
			},
			Service:     "ai-communications",
			Tool:        "send_message",
			Description: "Communication and messaging",
			Examples: []string{
				"send message to John", "call mom", "text my friend", "send email to boss",
			},
		},
		Navigation: {
			Intent: Navigation,
			Keywords: []string{
				"directions", "navigate", "route", "map", "location", "address",
				"drive", "walk", "travel", "destination", "gps", "traffic",
				"distance", "time", "eta", "waypoint",
			},
			Parameters: []ParameterSpec{
				{Name: "destination", Type: "string", Required: true,
					Description: "Destination address or location"},
				{Name: "origin", Type: "string",
					Description: "Starting location"},
				{Name: "mode", Type: "string",
					Choices:     []string{"driving", "walking", "transit", "cycling"},
					Description: "Travel mode"},
			},
			Service:     "ai-maps-navigation",
			Tool:        "get_directions",
			Description: "Navigation and directions",
			Examples: []string{
				"directions to the mall", "how to get to work",
				"navigate to 123 Main St", "walking directions to park",
			},
		},
		Information: {
			Intent: Information,
			Keywords: []string{
				"what", "how", "why", "when", "where", "who", "tell", "explain",
				"define", "describe", "show", "help", "information", "question",
				"weather", "time", "date", "news", "search", "find",
			},
			Parameters: []ParameterSpec{
				{Name: "query", Type: "string", Required: true,
					Description: "Information query"},
				{Name: "type", Type: "string",
					Choices:     []string{"weather", "time", "news", "general"},
					Description: "Type of information"},
			},
			Service:     "ai-information",
			Tool:        "get_information",
			Description: "Information and question answering",
			Examples: []string{
				"what's the weather", "what time is it",
				"tell me about Python", "how do I cook pasta",
			},
		},
		FileOperation: {
			Intent: FileOperation,
			Keywords: []string{
				"download", "upload", "copy", "move", "delete", "create", "save",
				"file", "document", "folder", "directory", "path", "url",
				"backup", "sync", "share", "export", "import",
			},
			Parameters: []ParameterSpec{
				{Name: "action", Type: "string", Required: true,
					Choices:     []string{"download", "upload", "copy", "move", "delete", "create"},
					Description: "File operation action"},
				{Name: "source", Type: "string",
					Description: "Source file or URL"},
				{Name: "destination", Type: "string",
					Description: "Destination path"},
			},
			Service:     "file-manager",
			Tool:        "file_operation",
			Description: "File and document operations",
			Examples: []string{
				"download file from URL", "copy file to desktop",
				"delete old documents", "create new folder",
			},
		},
		HardwareControl: {
			Intent: HardwareControl,
			Keywords: []string{
				"gpio", "pin", "sensor", "led", "relay", "pwm", "analog", "digital",
				"hardware", "device", "component", "circuit", "board", "arduino",
				"raspberry", "pi", "microcontroller",
			},
			Parameters: []ParameterSpec{
				{Name: "pin", Type: "integer", Required: true,
					MinValue: floatPtr(0), MaxValue: floatPtr(40),
					Description: "GPIO pin number"},
				{Name: "action", Type: "string", Required: true,
					Choices:     []string{"on", "off", "toggle", "read", "write", "pwm"},
					Description: "Hardware action"},
				{Name: "value", Type: "integer",
					MinValue: floatPtr(0), MaxValue: floatPtr(255),
					Description: "Value for PWM or analog write"},
			},
			Service:     "hardware-bridge",
			Tool:        "control_hardware",
			Description: "Hardware and GPIO control",
			Examples: []string{
				"turn on LED on pin 13", "read sensor on pin 2",
				"set PWM on pin 9 to 128", "toggle relay on pin 5",
			},
		},
	}
}
