package plan

type likeTokenKind uint8

const (
	likeLiteral likeTokenKind = iota
	likeAnyOne
	likeAnyMany
)

type likeToken struct {
	kind likeTokenKind
	r    rune
}

// tokenizeLike splits a pattern into literals and wildcards. Runs of % are
// collapsed into one. A backslash escapes % and _; before any other
// character it is itself a literal.
func tokenizeLike(pattern string) []likeToken {
	runes := []rune(pattern)
	tokens := make([]likeToken, 0, len(runes))
	for i := 0; i < len(runes); i++ {
		switch r := runes[i]; r {
		case '\\':
			if i+1 < len(runes) && (runes[i+1] == '%' || runes[i+1] == '_') {
				i++
				tokens = append(tokens, likeToken{kind: likeLiteral, r: runes[i]})
			} else {
				tokens = append(tokens, likeToken{kind: likeLiteral, r: r})
			}
		case '%':
			if n := len(tokens); n == 0 || tokens[n-1].kind != likeAnyMany {
				tokens = append(tokens, likeToken{kind: likeAnyMany})
			}
		case '_':
			tokens = append(tokens, likeToken{kind: likeAnyOne})
		default:
			tokens = append(tokens, likeToken{kind: likeLiteral, r: r})
		}
	}
	return tokens
}

// MatchLike reports whether text matches a SQL LIKE pattern: % matches any
// run of characters, _ exactly one, and \% and \_ match themselves.
//
// It runs in O(len(text) * len(pattern)) time with a single row of state, so
// wildcard heavy patterns cannot blow up.
func MatchLike(text, pattern string) bool {
	tokens := tokenizeLike(pattern)
	// dp[j] is whether the first j tokens match the text consumed so far.
	dp := make([]bool, len(tokens)+1)
	dp[0] = true
	for j, tok := range tokens {
		dp[j+1] = dp[j] && tok.kind == likeAnyMany
	}
	for _, r := range text {
		diag := dp[0]
		dp[0] = false
		for j, tok := range tokens {
			above := dp[j+1]
			switch tok.kind {
			case likeAnyMany:
				dp[j+1] = dp[j] || above
			case likeAnyOne:
				dp[j+1] = diag
			default:
				dp[j+1] = diag && tok.r == r
			}
			diag = above
		}
	}
	return dp[len(tokens)]
}
