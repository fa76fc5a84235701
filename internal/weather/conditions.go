package weather

// conditionLabels maps WMO weather interpretation codes to display labels.
var conditionLabels = map[int]string{
	0: "Clear", 1: "Mainly Clear", 2: "Partly Cloudy", 3: "Overcast",
	45: "Foggy", 48: "Depositing Rime Fog",
	51: "Light Drizzle", 53: "Moderate Drizzle", 55: "Dense Drizzle",
	56: "Light Freezing Drizzle", 57: "Dense Freezing Drizzle",
	61: "Slight Rain", 63: "Moderate Rain", 65: "Heavy Rain",
	66: "Light Freezing Rain", 67: "Heavy Freezing Rain",
	71: "Slight Snow", 73: "Moderate Snow", 75: "Heavy Snow",
	77: "Snow Grains",
	80: "Slight Rain Showers", 81: "Moderate Rain Showers", 82: "Violent Rain Showers",
	85: "Slight Snow Showers", 86: "Heavy Snow Showers",
	95: "Thunderstorm", 96: "Thunderstorm with Hail", 99: "Thunderstorm with Heavy Hail",
}

// ConditionLabel returns the label for a WMO weather code.
func ConditionLabel(code int) string {
	if label, ok := conditionLabels[code]; ok {
		return label
	}
	return "Unknown"
}

// ConditionSeverity grades hazardous weather codes. ok is false for codes
// that need no alert.
func ConditionSeverity(code int) (severity Severity, ok bool) {
	switch code {
	case 96, 99:
		return SeverityCritical, true
	case 95, 56, 57, 66, 67, 75, 82, 86:
		return SeverityWarning, true
	default:
		return "", false
	}
}

// CategorizeAQI maps a European AQI value to a category and severity.
func CategorizeAQI(value int) (category string, severity Severity) {
	switch {
	case value <= 50:
		return "Good", SeverityInfo
	case value <= 100:
		return "Moderate", SeverityInfo
	case value <= 150:
		return "Unhealthy for Sensitive Groups", SeverityWarning
	case value <= 200:
		return "Unhealthy", SeverityWarning
	case value <= 300:
		return "Very Unhealthy", SeverityCritical
	default:
		return "Hazardous", SeverityCritical
	}
}
