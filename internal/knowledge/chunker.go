package knowledge

import (
	"strings"
	"unicode/utf8"
)

// Chunk splits text into pieces of at most size runes on paragraph and
// sentence boundaries. Consecutive chunks share up to overlap runes.
func Chunk(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var (
		chunks []string
		cur    strings.Builder
		dirty  bool
	)
	flush := func() {
		s := strings.TrimSpace(cur.String())
		cur.Reset()
		dirty = false
		if s == "" {
			return
		}
		chunks = append(chunks, s)
		if overlap > 0 {
			cur.WriteString(tail(s, overlap))
		}
	}

	for _, piece := range pieces(text, size) {
		if utf8.RuneCountInString(cur.String())+utf8.RuneCountInString(piece)+1 > size {
			if dirty {
				flush()
			}
			if utf8.RuneCountInString(cur.String())+utf8.RuneCountInString(piece)+1 > size {
				cur.Reset()
			}
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(piece)
		dirty = true
	}
	if dirty {
		flush()
	}
	return chunks
}

// pieces breaks text into paragraphs, then sentences, then hard runs, so
// that every piece fits in size.
func pieces(text string, size int) []string {
	var out []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.Join(strings.Fields(para), " ")
		if para == "" {
			continue
		}
		if utf8.RuneCountInString(para) <= size {
			out = append(out, para)
			continue
		}
		for _, sent := range splitSentences(para) {
			for utf8.RuneCountInString(sent) > size {
				r := []rune(sent)
				out = append(out, string(r[:size]))
				sent = string(r[size:])
			}
			if sent != "" {
				out = append(out, sent)
			}
		}
	}
	return out
}

func splitSentences(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if (s[i] == '.' || s[i] == '?' || s[i] == '!') && (i+1 == len(s) || s[i+1] == ' ') {
			out = append(out, strings.TrimSpace(s[start:i+1]))
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	t := string(r[len(r)-n:])
	if i := strings.IndexByte(t, ' '); i >= 0 && i+1 < len(t) {
		return t[i+1:]
	}
	return t
}
