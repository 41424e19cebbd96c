package crash

import "strings"

// CompareVersions orders two app version strings and returns -1, 0 or 1.
//
// Versions are split on "." and compared segment by segment; a missing
// segment counts as "0". Within a segment the leading run of digits is
// compared numerically (any length). A segment with a suffix after its
// digits is a pre-release and sorts below the bare number; two suffixes are
// compared lexically. So "1.10" > "1.9", "2" == "2.0.0" and
// "2.0-rc1" < "2.0" < "2.0.1". Strings that are not dotted numbers get
// best-effort lexical ordering.
func CompareVersions(a, b string) int {
	as := strings.Split(strings.TrimSpace(a), ".")
	bs := strings.Split(strings.TrimSpace(b), ".")

	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		if c := compareSegment(segmentAt(as, i), segmentAt(bs, i)); c != 0 {
			return c
		}
	}
	return 0
}

func segmentAt(parts []string, i int) string {
	if i < len(parts) {
		return parts[i]
	}
	return "0"
}

func compareSegment(x, y string) int {
	xDigits, xRest := splitLeadingDigits(x)
	yDigits, yRest := splitLeadingDigits(y)
	if c := compareDigits(xDigits, yDigits); c != 0 {
		return c
	}
	switch {
	case xRest == yRest:
		return 0
	case xRest == "":
		return 1
	case yRest == "":
		return -1
	}
	return strings.Compare(xRest, yRest)
}

func splitLeadingDigits(s string) (string, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i], s[i:]
}

// compareDigits compares two decimal digit strings by value without parsing,
// so arbitrarily long build numbers cannot overflow. Empty means zero.
func compareDigits(x, y string) int {
	x = strings.TrimLeft(x, "0")
	y = strings.TrimLeft(y, "0")
	if len(x) != len(y) {
		if len(x) < len(y) {
			return -1
		}
		return 1
	}
	return strings.Compare(x, y)
}
