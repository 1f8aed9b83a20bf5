package worker

import "strings"

// DefaultStopwords returns the built-in call-stack filter list: an
// allocation whose call stack contains a frame matching any of these is
// dropped entirely rather than reported. These are lifted verbatim from
// the instrumentation this was ported from, where they filter out
// allocation noise from engine-internal systems that aren't interesting
// to a gameplay memory audit.
func DefaultStopwords() []string {
	return []string{"UberConsole", "FPSCounter", "CullStateChanged", "IMGUI"}
}

// formatFrame renders one call-stack frame the way the wire call-stack
// text expects: "Class.method\n".
func formatFrame(methodName string) string {
	return methodName + "\n"
}

// matchesStopword reports whether frame contains any of stopwords as a
// substring, matching the original's strstr-based filter.
func matchesStopword(frame string, stopwords []string) bool {
	for _, s := range stopwords {
		if strings.Contains(frame, s) {
			return true
		}
	}
	return false
}
