package dump

import "strings"

// SplitStatements splits a script at semicolons that are outside string
// literals, quoted identifiers and comments. Semicolons inside the
// BEGIN ... END body of CREATE TRIGGER do not split. Empty statements are
// dropped.
func SplitStatements(script string) []string {
	var (
		out   []string
		start int
		lead  []string // first keywords of the current statement
		depth int      // open BEGIN and CASE blocks in a trigger body
	)
	flush := func(end int) {
		if stmt := strings.TrimSpace(script[start:end]); stmt != "" && !onlyComments(stmt) {
			out = append(out, stmt)
		}
		lead = lead[:0]
		depth = 0
	}

	for i := 0; i < len(script); i++ {
		c := script[i]
		if isWordByte(c) {
			j := i + 1
			for j < len(script) && isWordByte(script[j]) {
				j++
			}
			word := strings.ToUpper(script[i:j])
			if len(lead) < 3 {
				lead = append(lead, word)
			} else if isTrigger(lead) {
				switch word {
				case "BEGIN", "CASE":
					depth++
				case "END":
					if depth > 0 {
						depth--
					}
				}
			}
			i = j - 1
			continue
		}
		switch c {
		case '\'', '"', '`':
			i = skipQuoted(script, i, c)
		case '[':
			if j := strings.IndexByte(script[i+1:], ']'); j >= 0 {
				i += j + 1
			} else {
				i = len(script)
			}
		case '-':
			if strings.HasPrefix(script[i:], "--") {
				i = skipLine(script, i)
			}
		case '/':
			if strings.HasPrefix(script[i:], "/*") {
				i = skipBlock(script, i)
			}
		case ';':
			if depth > 0 {
				continue
			}
			flush(i)
			start = i + 1
		}
	}
	flush(len(script))
	return out
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

// isTrigger reports whether the leading keywords start CREATE [TEMP] TRIGGER.
func isTrigger(lead []string) bool {
	if len(lead) < 2 || lead[0] != "CREATE" {
		return false
	}
	if lead[1] == "TRIGGER" {
		return true
	}
	return (lead[1] == "TEMP" || lead[1] == "TEMPORARY") && len(lead) > 2 && lead[2] == "TRIGGER"
}

// skipQuoted returns the index of the closing quote. A doubled quote
// is an escaped quote.
func skipQuoted(s string, i int, q byte) int {
	for j := i + 1; j < len(s); j++ {
		if s[j] != q {
			continue
		}
		if j+1 < len(s) && s[j+1] == q {
			j++
			continue
		}
		return j
	}
	return len(s)
}

func skipLine(s string, i int) int {
	if j := strings.IndexByte(s[i:], '\n'); j >= 0 {
		return i + j
	}
	return len(s)
}

func skipBlock(s string, i int) int {
	if j := strings.Index(s[i+2:], "*/"); j >= 0 {
		return i + 2 + j + 1
	}
	return len(s)
}

func onlyComments(stmt string) bool {
	for i := 0; i < len(stmt); i++ {
		switch c := stmt[i]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
		case strings.HasPrefix(stmt[i:], "--"):
			i = skipLine(stmt, i)
		case strings.HasPrefix(stmt[i:], "/*"):
			i = skipBlock(stmt, i)
		default:
			return false
		}
	}
	return true
}
