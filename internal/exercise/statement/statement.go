// Package statement reads and rewrites test references embedded in problem statements.
//
// A statement references test cases in two places:
//
//	[task][Sort the list](testBubbleSort,testMergeSort)
//	testsColor(testBubbleSort)
//
// Each reference is either a test case name or an id token <testid>42</testid>.
package statement

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	taskHeader  = regexp.MustCompile(`\[task\]\[([^\[\]]+)\]\(`)
	colorHeader = regexp.MustCompile(`testsColor\(`)
	testIDToken = regexp.MustCompile(`^<testid>(\d+)</testid>$`)
)

// TaskEntry is one [task] line of a statement.
type TaskEntry struct {
	Name  string
	Tests []string
}

// IDToken renders a test case id reference.
func IDToken(id int64) string {
	return "<testid>" + strconv.FormatInt(id, 10) + "</testid>"
}

// ParseIDToken returns the id of an id token.
func ParseIDToken(token string) (int64, bool) {
	m := testIDToken.FindStringSubmatch(strings.TrimSpace(token))
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// ParseTasks returns the [task] entries of the statement in order of appearance.
func ParseTasks(text string) []TaskEntry {
	var tasks []TaskEntry
	for _, loc := range taskHeader.FindAllStringSubmatchIndex(text, -1) {
		open := loc[1]
		end := matchParen(text, open)
		if end < 0 {
			continue
		}
		tasks = append(tasks, TaskEntry{
			Name:  strings.TrimSpace(text[loc[2]:loc[3]]),
			Tests: SplitTests(text[open:end]),
		})
	}
	return tasks
}

// SplitTests splits a comma separated test list, ignoring commas inside parentheses
// so that parameterized names such as testSort(int[],int) stay intact.
func SplitTests(list string) []string {
	var out []string
	depth, start := 0, 0
	emit := func(end int) {
		if tok := strings.TrimSpace(list[start:end]); tok != "" {
			out = append(out, tok)
		}
	}
	for i, r := range list {
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				emit(i)
				start = i + 1
			}
		}
	}
	emit(len(list))
	return out
}

// ReplaceTestNamesWithIDs rewrites every name reference found in byName to its id token.
// Tokens that are already ids, or unknown names, are left untouched, so the
// rewrite is idempotent.
func ReplaceTestNamesWithIDs(text string, byName map[string]int64) string {
	return rewriteReferences(text, func(token string) string {
		if _, ok := ParseIDToken(token); ok {
			return token
		}
		if id, ok := byName[token]; ok {
			return IDToken(id)
		}
		return token
	})
}

// ReplaceTestIDsWithNames rewrites every id token found in byID back to the test name.
func ReplaceTestIDsWithNames(text string, byID map[int64]string) string {
	return rewriteReferences(text, func(token string) string {
		id, ok := ParseIDToken(token)
		if !ok {
			return token
		}
		if name, ok := byID[id]; ok {
			return name
		}
		return token
	})
}

// RemapTestIDs rewrites the references of a statement copied from another exercise.
// Id tokens are first resolved to names through sourceNames, then all names are
// resolved to ids through targetIDs.
func RemapTestIDs(text string, sourceNames map[int64]string, targetIDs map[string]int64) string {
	return ReplaceTestNamesWithIDs(ReplaceTestIDsWithNames(text, sourceNames), targetIDs)
}

func rewriteReferences(text string, fn func(string) string) string {
	if text == "" {
		return text
	}
	var spans [][2]int
	for _, loc := range taskHeader.FindAllStringIndex(text, -1) {
		if end := matchParen(text, loc[1]); end >= 0 {
			spans = append(spans, [2]int{loc[1], end})
		}
	}
	for _, loc := range colorHeader.FindAllStringIndex(text, -1) {
		if end := matchParen(text, loc[1]); end >= 0 {
			spans = append(spans, [2]int{loc[1], end})
		}
	}
	if len(spans) == 0 {
		return text
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })

	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, sp := range spans {
		if sp[0] < prev {
			continue
		}
		b.WriteString(text[prev:sp[0]])
		rewriteList(&b, text[sp[0]:sp[1]], fn)
		prev = sp[1]
	}
	b.WriteString(text[prev:])
	return b.String()
}

// rewriteList writes list with every test token passed through fn. Separators
// and the whitespace around tokens are kept as they are.
func rewriteList(b *strings.Builder, list string, fn func(string) string) {
	depth, start := 0, 0
	segment := func(end int) {
		seg := list[start:end]
		tok := strings.TrimSpace(seg)
		if tok == "" {
			b.WriteString(seg)
			return
		}
		lead := strings.Index(seg, tok)
		b.WriteString(seg[:lead])
		b.WriteString(fn(tok))
		b.WriteString(seg[lead+len(tok):])
	}
	for i, r := range list {
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				segment(i)
				b.WriteByte(',')
				start = i + 1
			}
		}
	}
	segment(len(list))
}

// matchParen returns the index of the ')' closing the list that starts at open,
// or -1 when the list is unterminated on its line.
func matchParen(text string, open int) int {
	depth := 0
	for i := open; i < len(text); i++ {
		switch text[i] {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return i
			}
			depth--
		case '\n':
			return -1
		}
	}
	return -1
}
