package scenario

import (
	"regexp"
	"regexp/syntax"
	"strings"
)

const maxPatternRepeat = 64

// shortestMatch builds a short string that the pattern matches. It reports
// false when the pattern does not compile or the candidate fails to match.
func shortestMatch(pattern string) (string, bool) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", false
	}
	parsed, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return "", false
	}
	var b strings.Builder
	writeShortest(&b, parsed.Simplify())
	s := b.String()
	return s, re.MatchString(s)
}

func writeShortest(b *strings.Builder, re *syntax.Regexp) {
	switch re.Op {
	case syntax.OpLiteral:
		b.WriteString(string(re.Rune))
	case syntax.OpCharClass:
		b.WriteRune(classSample(re.Rune))
	case syntax.OpAnyChar, syntax.OpAnyCharNotNL:
		b.WriteByte('a')
	case syntax.OpCapture:
		writeShortest(b, re.Sub[0])
	case syntax.OpPlus:
		writeShortest(b, re.Sub[0])
	case syntax.OpRepeat:
		n := re.Min
		if n > maxPatternRepeat {
			n = maxPatternRepeat
		}
		for i := 0; i < n; i++ {
			writeShortest(b, re.Sub[0])
		}
	case syntax.OpConcat:
		for _, sub := range re.Sub {
			writeShortest(b, sub)
		}
	case syntax.OpAlternate:
		best := ""
		for i, sub := range re.Sub {
			var alt strings.Builder
			writeShortest(&alt, sub)
			if i == 0 || alt.Len() < len(best) {
				best = alt.String()
			}
		}
		b.WriteString(best)
	}
	// OpStar, OpQuest, OpEmptyMatch and the anchors contribute nothing.
}

// classSample picks a printable rune from a character class, preferring
// alphanumerics.
func classSample(ranges []rune) rune {
	if len(ranges) < 2 {
		return 'a'
	}
	for _, want := range []rune{'a', 'A', '0'} {
		for i := 0; i+1 < len(ranges); i += 2 {
			if ranges[i] <= want && want <= ranges[i+1] {
				return want
			}
		}
	}
	for i := 0; i+1 < len(ranges); i += 2 {
		lo, hi := ranges[i], ranges[i+1]
		if lo < 0x21 && hi >= 0x21 {
			return 0x21
		}
		if lo >= 0x21 {
			return lo
		}
	}
	return ranges[0]
}

var nonMatchCandidates = []string{"!", "~~~", " ", "0", "a", "", "A_-#", "éé"}

// nonMatching returns a value the pattern rejects. Uncompilable patterns get
// a symbol string.
func nonMatching(pattern string) (string, bool) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "!#%&", true
	}
	for _, c := range nonMatchCandidates {
		if !re.MatchString(c) {
			return c, true
		}
	}
	return "", false
}

// fitsPattern reports whether s satisfies pattern; uncompilable patterns
// accept anything.
func fitsPattern(pattern, s string) bool {
	if pattern == "" {
		return true
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return true
	}
	return re.MatchString(s)
}
