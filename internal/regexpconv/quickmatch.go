package regexpconv

// QuickMatch returns the first maximal run of well-formed UTF-8 sequences in
// s. The accepted alphabet is ASCII plus the structural 2, 3 and 4 byte
// forms (a lead byte followed by the right number of continuation bytes).
// ok is false when s contains no such character.
func QuickMatch(s string) (match string, ok bool) {
	start := -1
	for i := 0; i < len(s); {
		n := sequenceLen(s, i)
		if n == 0 {
			if start >= 0 {
				return s[start:i], true
			}
			i++
			continue
		}
		if start < 0 {
			start = i
		}
		i += n
	}
	if start < 0 {
		return "", false
	}
	return s[start:], true
}

// sequenceLen returns the length of the character starting at s[i], or 0
// if the bytes there do not form one.
func sequenceLen(s string, i int) int {
	c := s[i]
	var n int
	switch {
	case c < 0x80:
		return 1
	case c >= 0xC0 && c <= 0xDF:
		n = 2
	case c >= 0xE0 && c <= 0xEF:
		n = 3
	case c >= 0xF0 && c <= 0xF7:
		n = 4
	default:
		return 0
	}
	if i+n > len(s) {
		return 0
	}
	for j := i + 1; j < i+n; j++ {
		if s[j]&0xC0 != 0x80 {
			return 0
		}
	}
	return n
}
