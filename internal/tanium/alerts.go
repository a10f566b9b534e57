package tanium

import (
	"fmt"
	"slices"
	"strings"
)

// AlertStates are the alert states Threat Response accepts as filters.
var AlertStates = []string{"unresolved", "inprogress", "resolved", "suppressed"}

// NormalizeAlertStates lower-cases states and rejects unknown ones.
func NormalizeAlertStates(states []string) ([]string, error) {
	out := make([]string, 0, len(states))
	for _, s := range states {
		lower := strings.ToLower(strings.TrimSpace(s))
		if !slices.Contains(AlertStates, lower) {
			return nil, &ConfigurationError{Message: fmt.Sprintf(
				"Invalid state '%s' in filter_alerts_by_state parameter."+
					"Possible values are 'unresolved', 'inprogress', 'resolved' or 'suppressed'.", s)}
		}
		out = append(out, lower)
	}
	return out, nil
}
