package agent

import (
	"fmt"
	"strings"
)

// Mermaid returns the state machine as a Mermaid state diagram.
func Mermaid() string {
	var b strings.Builder
	b.WriteString("stateDiagram-v2\n")
	fmt.Fprintf(&b, "    [*] --> %s\n", StateRoute)
	for _, t := range transitions {
		to := t.to.String()
		if t.to == StateDone {
			to = "[*]"
		}
		fmt.Fprintf(&b, "    %s --> %s\n", t.from, to)
	}
	return b.String()
}
