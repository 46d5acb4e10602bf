package util

import "strings"

const (
	SeeMorePadding = 500
	ZeroWidthSpace = "\u200b"
	DefaultSeeMore = "Tap 'See more' to read everything"
)

// SeeMore pushes body below the chat client's fold: a short visible headline,
// a run of zero-width spaces, then the body.
func SeeMore(body, headline string) string {
	if strings.TrimSpace(body) == "" {
		return body
	}
	headline = strings.TrimSpace(headline)
	if headline == "" {
		headline = DefaultSeeMore
	}

	var b strings.Builder
	b.Grow(len(headline) + SeeMorePadding*len(ZeroWidthSpace) + len(body) + 1)
	b.WriteString(headline)
	b.WriteString(strings.Repeat(ZeroWidthSpace, SeeMorePadding))
	if !strings.HasPrefix(body, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(body)
	return b.String()
}

// StripLeadingHeader drops header (and the blank line after it) from the top of text.
func StripLeadingHeader(text, header string) string {
	if strings.TrimSpace(text) == "" || strings.TrimSpace(header) == "" {
		return text
	}
	for _, candidate := range []string{header + "\r\n\r\n", header + "\n\n", header + "\r\n", header + "\n", header} {
		if strings.HasPrefix(text, candidate) {
			return strings.TrimPrefix(text, candidate)
		}
	}
	return text
}

// SeeMoreWithHeader moves text's own header into the visible headline.
func SeeMoreWithHeader(text, header, suffix string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	headline := strings.TrimSpace(header)
	if headline != "" && suffix != "" {
		headline += suffix
	}
	return SeeMore(StripLeadingHeader(text, header), headline)
}
