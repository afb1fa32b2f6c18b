package chatsync

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"golang.org/x/text/unicode/norm"
)

const (
	// peekLimit bounds how much of a session file is read for metadata.
	peekLimit = 64 * 1024

	// maxTitleRunes truncates titles derived from request text.
	maxTitleRunes = 80

	// DefaultTitle is used when no title can be recovered.
	DefaultTitle = "Untitled session"
)

// Header holds the display fields recovered from the start of a session
// file. Zero values mean the field was not found.
type Header struct {
	Title           string
	CreationDate    int64
	LastMessageDate int64
}

// Extractor recovers a Header from the beginning of a session file.
// Extraction is best-effort: malformed input yields defaults, never an
// error.
type Extractor interface {
	Extract(r io.Reader) Header
}

// ExtractorFor returns the extractor for a format.
func ExtractorFor(f Format) Extractor {
	if f == FormatJSONL {
		return jsonlExtractor{}
	}

	return jsonExtractor{}
}

// jsonExtractor reads whole-document session files. Only the first
// peekLimit bytes are parsed; gjson tolerates the truncated tail.
type jsonExtractor struct{}

func (jsonExtractor) Extract(r io.Reader) Header {
	buf, err := io.ReadAll(io.LimitReader(r, peekLimit))
	if err != nil && len(buf) == 0 {
		return Header{Title: DefaultTitle}
	}

	return headerFrom(gjson.ParseBytes(buf))
}

// jsonlExtractor reads append-only logs whose first line is the header
// record, either bare or wrapped as {"kind":0,"v":{...}}.
type jsonlExtractor struct{}

func (jsonlExtractor) Extract(r io.Reader) Header {
	sc := bufio.NewScanner(io.LimitReader(r, peekLimit))
	sc.Buffer(make([]byte, 0, 4096), peekLimit)

	var first []byte

	for sc.Scan() {
		if line := bytes.TrimSpace(sc.Bytes()); len(line) > 0 {
			first = line
			break
		}
	}

	if first == nil {
		return Header{Title: DefaultTitle}
	}

	rec := gjson.ParseBytes(first)
	if v := rec.Get("v"); v.IsObject() {
		rec = v
	}

	return headerFrom(rec)
}

func headerFrom(doc gjson.Result) Header {
	h := Header{
		CreationDate:    doc.Get("creationDate").Int(),
		LastMessageDate: doc.Get("lastMessageDate").Int(),
	}

	title := doc.Get("customTitle").String()
	if strings.TrimSpace(title) == "" {
		title = doc.Get("title").String()
	}

	if strings.TrimSpace(title) == "" {
		title = truncateRunes(doc.Get("requests.0.message.text").String(), maxTitleRunes)
	}

	title = strings.TrimSpace(norm.NFC.String(title))
	if title == "" || !utf8.ValidString(title) {
		title = DefaultTitle
	}

	h.Title = title

	return h
}

func truncateRunes(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	runes := []rune(s)

	return string(runes[:n-1]) + "…"
}
