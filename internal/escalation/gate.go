package escalation

import "strings"

// Gate matches inbound text against the configured escalation trigger
// phrases and restart commands. Pure: text in, decision out.
type Gate struct {
	keywords []string
	restarts []string
}

// NewGate creates a gate. Keywords match as case-insensitive substrings;
// restart phrases match exactly after trimming.
func NewGate(keywords, restartPhrases []string) *Gate {
	g := &Gate{
		keywords: make([]string, len(keywords)),
		restarts: make([]string, len(restartPhrases)),
	}
	for i, k := range keywords {
		g.keywords[i] = strings.ToLower(k)
	}
	for i, r := range restartPhrases {
		g.restarts[i] = strings.ToLower(strings.TrimSpace(r))
	}
	return g
}

// WantsHuman reports whether the message contains an escalation trigger.
func (g *Gate) WantsHuman(message string) bool {
	lower := strings.ToLower(message)
	for _, k := range g.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// IsRestart reports whether the message is the out-of-band restart
// command. Exact match only: "please restart my router" is not a reset.
func (g *Gate) IsRestart(message string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(message))
	for _, r := range g.restarts {
		if trimmed == r {
			return true
		}
	}
	return false
}
