package pattern

// Find returns the offset of the first match of b in haystack, or -1.
// mask must contain one MaskExact or MaskAny character per byte in b.
func Find(haystack []byte, b []byte, mask string, algorithm Algorithm) (int, error) {
	return Pattern{
		Bytes:     b,
		Mask:      mask,
		Algorithm: algorithm,
	}.Index(haystack)
}

func indexNaive(haystack []byte, pattern []byte, wild []bool) int {
	m := len(pattern)

outer:
	for i := 0; i <= len(haystack)-m; i++ {
		for j := 0; j < m; j++ {
			if !wild[j] && haystack[i+j] != pattern[j] {
				continue outer
			}
		}

		return i
	}

	return -1
}

// indexHorspool is Boyer-Moore-Horspool with wildcard positions.
//
// A wildcard at index w matches whatever byte sits under it, so the
// window can never be shifted further than last-w without possibly
// skipping a match. That distance is the default shift. Only the
// exact bytes after the last wildcard get smaller, byte-specific shifts.
func indexHorspool(haystack []byte, pattern []byte, wild []bool) int {
	n := len(haystack)
	m := len(pattern)
	if m > n {
		return -1
	}

	last := m - 1

	lastWild := -1
	for i := 0; i < last; i++ {
		if wild[i] {
			lastWild = i
		}
	}

	defaultShift := last - lastWild

	var shifts [256]int
	for i := range shifts {
		shifts[i] = defaultShift
	}

	for i := lastWild + 1; i < last; i++ {
		shifts[pattern[i]] = last - i
	}

	for pos := 0; pos <= n-m; {
		j := last
		for j >= 0 && (wild[j] || haystack[pos+j] == pattern[j]) {
			j--
		}

		if j < 0 {
			return pos
		}

		pos += shifts[haystack[pos+last]]
	}

	return -1
}
