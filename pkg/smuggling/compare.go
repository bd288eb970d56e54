package smuggling

import "github.com/CodeMonkeyCybersecurity/clguess/internal/core"

// RequestMatch reports whether candidate b is equivalent to reference a:
// same status code and a length strictly within 10% of a's. The window is
// built from a only, so callers always pass the baseline first.
//
// Equal lengths always match. This goes beyond the floored window on its
// own, which is empty for lengths under ten bytes and would make a short
// response fail to match itself. With the extra clause RequestMatch(p, a, a)
// holds for every a.
func RequestMatch(p core.MessageParser, a, b []byte) bool {
	if p.StatusCode(a) != p.StatusCode(b) {
		return false
	}

	lenA := bodyLength(p, a)
	lenB := bodyLength(p, b)
	if lenA == 0 || lenB == 0 {
		lenA = len(a)
		lenB = len(b)
	}

	lower := (9 * lenA) / 10
	upper := (11 * lenA) / 10
	return lenB == lenA || (lenB > lower && lenB < upper)
}

// bodyLength is zero when the message has no header terminator.
func bodyLength(p core.MessageParser, msg []byte) int {
	off, err := p.BodyOffset(msg)
	if err != nil || off > len(msg) {
		return 0
	}
	return len(msg) - off
}

// effectiveLength is the length RequestMatch compares when msg is matched
// against itself.
func effectiveLength(p core.MessageParser, msg []byte) int {
	if n := bodyLength(p, msg); n > 0 {
		return n
	}
	return len(msg)
}
