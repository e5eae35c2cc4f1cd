package source

import (
	"bufio"
	"mime"
	"net/mail"
	"regexp"
	"strings"

	"github.com/roach88/graft/internal/model"
)

// patchPrefix matches the "[PATCH 2/7] " tag format-patch puts on subjects.
var patchPrefix = regexp.MustCompile(`^\[[^\]]*PATCH[^\]]*\]\s*`)

var wordDecoder = mime.WordDecoder{}

// mailHeaders fills author, email, subject and timestamp from the mail
// headers of a format-patch file. Plain diffs have no headers and leave
// meta untouched.
func mailHeaders(content string, meta model.Object) {
	r := bufio.NewReader(strings.NewReader(content))
	first, err := r.Peek(5)
	if err == nil && string(first) == "From " {
		// mbox separator line, not a header.
		if _, err := r.ReadString('\n'); err != nil {
			return
		}
	}
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return
	}

	if from := msg.Header.Get("From"); from != "" {
		if addr, err := mail.ParseAddress(from); err == nil {
			meta[model.MetaAuthor] = model.String(addr.Name)
			meta[model.MetaEmail] = model.String(addr.Address)
		} else {
			meta[model.MetaAuthor] = model.String(decodeHeader(from))
		}
	}
	if subject := msg.Header.Get("Subject"); subject != "" {
		meta[model.MetaSubject] = model.String(cleanSubject(decodeHeader(subject)))
	}
	if date, err := msg.Header.Date(); err == nil {
		meta[model.MetaTimestamp] = model.Int(date.Unix())
	}
}

func decodeHeader(s string) string {
	out, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return out
}

// cleanSubject drops the PATCH tag and unfolds continuation whitespace.
func cleanSubject(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return patchPrefix.ReplaceAllString(s, "")
}
