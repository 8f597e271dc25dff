package marker

// DecodeDigit maps one cell's blob layout to a digit:
//
//	0 blobs                        → '0'
//	1 horizontal                   → '8'
//	1 vertical, small / large      → '1' / '5'
//	2 horizontal, a0/a1 >hi <lo ~  → '7' / '9' / '3'
//	2 vertical,   a0/a1 >hi <lo ~  → '6' / '4' / '2'
//
// Anything else is UnknownDigit. Only the first blob's orientation decides
// the two-blob rows.
func DecodeDigit(info SegmentInfo, params DetectionParams) byte {
	switch info.NumContours {
	case 0:
		return '0'
	case 1:
		if len(info.Orientations) < 1 || len(info.AreaRatios) < 1 {
			return UnknownDigit
		}
		if info.Orientations[0] == Horizontal {
			return '8'
		}
		if info.AreaRatios[0] < params.NarrowAreaRatio {
			return '1'
		}
		return '5'
	case 2:
		if len(info.Orientations) < 1 {
			return UnknownDigit
		}
		rel := info.AreaRatioRelation
		if info.Orientations[0] == Horizontal {
			switch {
			case rel > params.RelationHigh:
				return '7'
			case rel < params.RelationLow:
				return '9'
			default:
				return '3'
			}
		}
		switch {
		case rel > params.RelationHigh:
			return '6'
		case rel < params.RelationLow:
			return '4'
		default:
			return '2'
		}
	default:
		return UnknownDigit
	}
}

// DecodeNumber decodes up to 4 cells. Missing cells become UnknownDigit, so
// the result always has CodeLength characters.
func DecodeNumber(infos []SegmentInfo, params DetectionParams) string {
	code := make([]byte, CodeLength)
	for i := range code {
		if i >= len(infos) {
			code[i] = UnknownDigit
			continue
		}
		code[i] = DecodeDigit(infos[i], params)
	}
	return string(code)
}

// ValidCode reports whether s is a well-formed decoded code.
func ValidCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && c != UnknownDigit {
			return false
		}
	}
	return true
}
