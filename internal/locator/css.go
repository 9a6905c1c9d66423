package locator

import (
	"fmt"
	"strings"
)

// escapeCSSIdentifier escapes one class token for use in a selector,
// following the CSS.escape serialization rules. An empty token is the one
// input the algorithm cannot represent and is reported as an error so the
// caller can fall back to the bare tag selector.
func escapeCSSIdentifier(ident string) (string, error) {
	if ident == "" {
		return "", fmt.Errorf("empty identifier")
	}

	var b strings.Builder
	runes := []rune(ident)
	for i, r := range runes {
		switch {
		case r == 0:
			b.WriteRune('�')
		case (r >= 0x01 && r <= 0x1F) || r == 0x7F:
			fmt.Fprintf(&b, "\\%x ", r)
		case i == 0 && r >= '0' && r <= '9':
			fmt.Fprintf(&b, "\\%x ", r)
		case i == 1 && r >= '0' && r <= '9' && runes[0] == '-':
			fmt.Fprintf(&b, "\\%x ", r)
		case i == 0 && r == '-' && len(runes) == 1:
			b.WriteString("\\-")
		case r >= 0x80 || r == '-' || r == '_' ||
			(r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z'):
			b.WriteRune(r)
		default:
			b.WriteRune('\\')
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}
