// internal/scraper/decode.go
package scraper

import (
	"bytes"
	"mime"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decoded is the text form of a response body.
type Decoded struct {
	Text     string
	Encoding string
	// Binary is set for media that must not be decoded, e.g. PDF.
	Binary bool
}

// MediaType returns the lower-cased media type of a Content-Type header.
func MediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	return strings.ToLower(mediaType)
}

// IsBinaryMediaType reports whether a media type holds non-text content.
func IsBinaryMediaType(mediaType string) bool {
	switch {
	case mediaType == "application/pdf",
		mediaType == "application/octet-stream",
		mediaType == "application/zip",
		strings.HasPrefix(mediaType, "image/"),
		strings.HasPrefix(mediaType, "audio/"),
		strings.HasPrefix(mediaType, "video/"),
		strings.HasPrefix(mediaType, "font/"):
		return true
	}
	return false
}

// DecodeBody turns a body into text. It prefers the declared charset, then
// BOM and <meta> sniffing for markup, then UTF-8 with invalid sequences
// replaced. It never fails.
func DecodeBody(body []byte, contentType string) Decoded {
	mediaType := MediaType(contentType)
	if IsBinaryMediaType(mediaType) || bytes.HasPrefix(body, []byte("%PDF-")) {
		return Decoded{Binary: true}
	}
	if len(body) == 0 {
		return Decoded{Encoding: "utf-8"}
	}

	if declared := declaredCharset(contentType); declared != "" {
		if enc, name := charset.Lookup(declared); enc != nil {
			if text, ok := decodeWith(enc, body); ok {
				return Decoded{Text: text, Encoding: name}
			}
		}
	}

	if isMarkup(mediaType, body) {
		enc, name, _ := charset.DetermineEncoding(body, contentType)
		if text, ok := decodeWith(enc, body); ok {
			return Decoded{Text: text, Encoding: name}
		}
	}

	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))
	if utf8.Valid(body) {
		return Decoded{Text: string(body), Encoding: "utf-8"}
	}
	return Decoded{Text: strings.ToValidUTF8(string(body), "\uFFFD"), Encoding: "utf-8"}
}

func declaredCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(params["charset"])
}

// decodeWith decodes body with enc, letting a byte order mark override it.
func decodeWith(enc encoding.Encoding, body []byte) (string, bool) {
	decoder := unicode.BOMOverride(enc.NewDecoder())
	out, _, err := transform.Bytes(decoder, body)
	if err != nil {
		return "", false
	}
	return string(out), true
}

func isMarkup(mediaType string, body []byte) bool {
	if strings.Contains(mediaType, "html") || strings.Contains(mediaType, "xml") {
		return true
	}
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")), " \t\r\n")
	return bytes.HasPrefix(trimmed, []byte("<"))
}
