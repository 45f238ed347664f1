package mtproto

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/gotd/td/tg"
)

// MarkdownToEntities converts legacy Telegram Markdown into plain text and
// the entity list that reproduces its formatting. Entity offsets are in
// UTF-16 code units. Unterminated markers are kept as literal text.
//
// Supported: *bold*, _italic_, `code`, ```lang\npre```, [text](url).
func MarkdownToEntities(md string) (string, []tg.MessageEntityClass) {
	var (
		b        strings.Builder
		entities []tg.MessageEntityClass
		pos      int
	)
	emit := func(s string) {
		b.WriteString(s)
		pos += utf16Len(s)
	}

	for len(md) > 0 {
		switch {
		case strings.HasPrefix(md, "```"):
			end := strings.Index(md[3:], "```")
			if end < 0 {
				emit(md[:3])
				md = md[3:]
				continue
			}
			body := md[3 : 3+end]
			md = md[3+end+3:]

			var lang string
			if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], " \t") {
				lang, body = body[:nl], body[nl+1:]
			}
			start := pos
			emit(body)
			if n := pos - start; n > 0 {
				entities = append(entities, &tg.MessageEntityPre{Offset: start, Length: n, Language: lang})
			}

		case md[0] == '*' || md[0] == '_' || md[0] == '`':
			delim := md[0]
			end := strings.IndexByte(md[1:], delim)
			if end <= 0 {
				emit(md[:1])
				md = md[1:]
				continue
			}
			body := md[1 : 1+end]
			md = md[2+end:]

			start := pos
			emit(body)
			entities = append(entities, spanEntity(delim, start, pos-start))

		case md[0] == '[':
			text, url, rest, ok := cutLink(md)
			if !ok {
				emit(md[:1])
				md = md[1:]
				continue
			}
			md = rest
			start := pos
			emit(text)
			if n := pos - start; n > 0 {
				entities = append(entities, &tg.MessageEntityTextURL{Offset: start, Length: n, URL: url})
			}

		default:
			_, size := utf8.DecodeRuneInString(md)
			emit(md[:size])
			md = md[size:]
		}
	}

	return b.String(), entities
}

func spanEntity(delim byte, offset, length int) tg.MessageEntityClass {
	switch delim {
	case '*':
		return &tg.MessageEntityBold{Offset: offset, Length: length}
	case '_':
		return &tg.MessageEntityItalic{Offset: offset, Length: length}
	default:
		return &tg.MessageEntityCode{Offset: offset, Length: length}
	}
}

// cutLink splits "[text](url)rest".
func cutLink(md string) (text, url, rest string, ok bool) {
	mid := strings.Index(md, "](")
	if mid < 0 || strings.ContainsRune(md[1:mid], '\n') {
		return "", "", "", false
	}
	end := strings.IndexByte(md[mid+2:], ')')
	if end < 0 {
		return "", "", "", false
	}
	return md[1:mid], md[mid+2 : mid+2+end], md[mid+2+end+1:], true
}

func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}
