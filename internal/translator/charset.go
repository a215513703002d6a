package translator

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/quotedprintable"
	"regexp"
	"strings"
	"unicode/utf8"

	msgcharset "github.com/emersion/go-message/charset"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/hkdb/nolas-go/internal/logging"
)

// decodeQuotedPrintableIfNeeded decodes quoted-printable content that a
// mis-declared Content-Transfer-Encoding left un-decoded by go-message.
func decodeQuotedPrintableIfNeeded(content []byte) []byte {
	s := string(content)
	if !strings.Contains(s, "=3D") && !strings.Contains(s, "=\n") && !strings.Contains(s, "=\r\n") {
		return content
	}
	decoded, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(content)))
	if err != nil {
		return content
	}
	return decoded
}

// decodeCharset converts content to UTF-8, validating the declared charset
// against the bytes and falling back to auto-detection (and a Chinese
// encoding sweep) when the declaration looks wrong or is absent.
func decodeCharset(content []byte, declaredCharset string) string {
	log := logging.WithComponent("translator.charset")

	if declaredCharset == "" || strings.EqualFold(declaredCharset, "utf-8") || strings.EqualFold(declaredCharset, "us-ascii") {
		if utf8.Valid(content) {
			str := string(content)
			if !looksLikeGibberish(str) {
				return str
			}
			log.Debug().Msg("valid utf-8 but looks like gibberish, trying auto-detection")
		}

		enc, name, _ := charset.DetermineEncoding(content, "text/html")
		if decoded, err := enc.NewDecoder().Bytes(content); err == nil && !looksLikeGibberish(string(decoded)) {
			log.Debug().Str("detected", name).Msg("decoded via auto-detection")
			return string(decoded)
		}

		for _, encName := range []string{"gb18030", "gbk", "gb2312", "big5", "euc-tw"} {
			enc, err := htmlindex.Get(encName)
			if err != nil {
				continue
			}
			if decoded, err := enc.NewDecoder().Bytes(content); err == nil && utf8.Valid(decoded) && !looksLikeGibberish(string(decoded)) {
				log.Debug().Str("tried", encName).Msg("decoded via chinese encoding fallback")
				return string(decoded)
			}
		}
		return string(content)
	}

	enc, err := htmlindex.Get(declaredCharset)
	if err != nil {
		aliases := map[string]string{"gb2312": "gbk", "x-gbk": "gbk", "x-big5": "big5"}
		if alias, ok := aliases[strings.ToLower(declaredCharset)]; ok {
			enc, err = htmlindex.Get(alias)
		}
		if err != nil {
			log.Warn().Err(err).Str("charset", declaredCharset).Msg("unknown charset, returning as-is")
			return string(content)
		}
	}

	decoded, err := enc.NewDecoder().Bytes(content)
	if err != nil {
		return string(content)
	}
	return string(decoded)
}

// looksLikeGibberish flags strings that decoded "successfully" but are
// actually misencoded: a high density of replacement characters, or of
// CJK Extension B characters that are vanishingly rare in real text.
func looksLikeGibberish(s string) bool {
	if len(s) == 0 {
		return false
	}
	var replacementCount, cjkExtBCount, total int
	for _, r := range s {
		total++
		if r == '�' {
			replacementCount++
		}
		if r >= 0x20000 && r <= 0x2A6DF {
			cjkExtBCount++
		}
	}
	if total > 10 && float64(replacementCount)/float64(total) > 0.1 {
		return true
	}
	if total > 20 && float64(cjkExtBCount)/float64(total) > 0.05 {
		return true
	}
	return false
}

var (
	metaCharsetRe   = regexp.MustCompile(`(?i)<meta[^>]+charset=["']?([^"'\s>]+)`)
	metaHTTPEquivRe = regexp.MustCompile(`(?i)<meta[^>]+content=["'][^"']*charset=([^"'\s;]+)`)
)

// extractCharsetFromHTML scans the leading bytes of an HTML part for a
// <meta charset> declaration when the MIME Content-Type omitted one.
func extractCharsetFromHTML(html []byte) string {
	search := html
	if len(search) > 1024 {
		search = search[:1024]
	}
	if m := metaCharsetRe.FindSubmatch(search); len(m) > 1 {
		return string(m[1])
	}
	if m := metaHTTPEquivRe.FindSubmatch(search); len(m) > 1 {
		return string(m[1])
	}
	return ""
}

// decodeMIMEWord decodes RFC 2047 encoded words in headers (subjects,
// display names, attachment filenames), trying go-message's charset
// registry first and falling back to htmlindex for broader coverage
// (GB2312, GBK, Big5, and friends).
func decodeMIMEWord(s string) string {
	if s == "" {
		return s
	}
	dec := &mime.WordDecoder{
		CharsetReader: func(charsetName string, r io.Reader) (io.Reader, error) {
			if reader, err := msgcharset.Reader(charsetName, r); err == nil {
				return reader, nil
			}
			enc, err := htmlindex.Get(charsetName)
			if err != nil {
				return nil, fmt.Errorf("unknown charset: %s", charsetName)
			}
			return enc.NewDecoder().Reader(r), nil
		},
	}
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}
