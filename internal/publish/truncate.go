package publish

import (
	"strings"
	"unicode/utf8"
)

const ellipsis = "..."

// TruncateHTML shortens s to at most limit runes. The cut never lands inside
// a tag or an entity, tags left open by the cut are closed, and "..." is
// placed before the closing tags. The result is deterministic for a given
// input and limit.
func TruncateHTML(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	rs := []rune(s)
	budget := limit - utf8.RuneCountInString(ellipsis)
	if budget < 0 {
		return string([]rune(ellipsis)[:limit])
	}

	for cut := budget; cut >= 0; {
		cut = safeCut(rs, cut)
		closers := closingTags(rs[:cut])
		total := cut + utf8.RuneCountInString(ellipsis) + utf8.RuneCountInString(closers)
		if total <= limit {
			return strings.TrimRight(string(rs[:cut]), " \n") + ellipsis + closers
		}
		cut -= total - limit
	}
	return ellipsis
}

// safeCut moves cut back so rs[:cut] does not end in the middle of a tag or
// an entity.
func safeCut(rs []rune, cut int) int {
	if cut > len(rs) {
		cut = len(rs)
	}
	for i := cut - 1; i >= 0; i-- {
		if rs[i] == '>' {
			break
		}
		if rs[i] == '<' {
			cut = i
			break
		}
	}
	for i := cut - 1; i >= 0 && cut-i <= 10; i-- {
		if rs[i] == ';' || rs[i] == ' ' || rs[i] == '\n' {
			break
		}
		if rs[i] == '&' {
			cut = i
			break
		}
	}
	return cut
}

// closingTags returns the end tags needed to balance the tags opened in rs.
func closingTags(rs []rune) string {
	var open []string
	for i := 0; i < len(rs); i++ {
		if rs[i] != '<' {
			continue
		}
		j := i + 1
		for j < len(rs) && rs[j] != '>' {
			j++
		}
		if j >= len(rs) {
			break
		}
		tag := string(rs[i+1 : j])
		i = j
		if strings.HasSuffix(tag, "/") {
			continue
		}
		if strings.HasPrefix(tag, "/") {
			name := strings.ToLower(strings.TrimSpace(tag[1:]))
			for k := len(open) - 1; k >= 0; k-- {
				if open[k] == name {
					open = open[:k]
					break
				}
			}
			continue
		}
		name := tag
		if sp := strings.IndexAny(name, " \t\n"); sp >= 0 {
			name = name[:sp]
		}
		open = append(open, strings.ToLower(name))
	}
	var b strings.Builder
	for k := len(open) - 1; k >= 0; k-- {
		b.WriteString("</" + open[k] + ">")
	}
	return b.String()
}
