package notify

import (
	"fmt"
	"strings"
	"time"
)

// Funções puras: dados de anomalia/bem-estar → texto legível. Sem estado.

func FormatAnomaly(entityID, anomalyType, source, description string, score float64, when time.Time) string {
	title := "Unusual Pattern Detected"
	switch anomalyType {
	case "unusual_activity":
		title = "Unusual Activity Detected"
	case "unusual_inactivity":
		title = "Unusual Inactivity Detected"
	case "broken_pattern":
		title = "Missing Expected Activity"
	}
	return fmt.Sprintf(":mag: *%s* `%s`\n%s\nscore=%.2f source=%s time=%s",
		title, entityID, description, score, source, when.UTC().Format("2006-01-02 15:04:05"))
}

func FormatWelfare(status string, reasons []string, when time.Time) string {
	icon := ":heart:"
	switch status {
	case "concern":
		icon = ":warning:"
	case "alert":
		icon = ":rotating_light:"
	case "check_recommended":
		icon = ":eyes:"
	}
	txt := fmt.Sprintf("%s *Welfare status: %s* (%s)", icon, status, when.UTC().Format("2006-01-02 15:04:05"))
	if len(reasons) > 0 {
		txt += "\n• " + strings.Join(reasons, "\n• ")
	}
	return txt
}
