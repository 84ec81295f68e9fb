// Package codec converts fiscal XML payloads to and from the wire
// representation expected by the tax authority: UTF-8 XML, gzip compressed,
// base64 encoded inside the JSON envelope.
package codec

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"regexp"
	"strings"

	ierr "github.com/notaflow/notaflow/internal/errors"
)

// signatureRe matches an enveloped XML digital signature block, with or
// without a namespace prefix.
var signatureRe = regexp.MustCompile(`(?s)<(?:[A-Za-z_][\w.-]*:)?Signature[\s>].*?</(?:[A-Za-z_][\w.-]*:)?Signature>`)

// Compress gzips the XML at maximum ratio and encodes the result as base64
// text for transport inside the authority's JSON envelope.
func Compress(xml string) (string, error) {
	var buf bytes.Buffer
	writer, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to prepare the document payload").
			Mark(ierr.ErrCodec)
	}

	if _, err := writer.Write([]byte(xml)); err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to compress the document payload").
			Mark(ierr.ErrCodec)
	}

	if err := writer.Close(); err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to compress the document payload").
			Mark(ierr.ErrCodec)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decompress reverses Compress. Upstream systems sometimes return plain
// base64-encoded XML where compressed content is expected, so when the
// decoded bytes are not a gzip stream they are accepted as-is, provided
// they still look like an XML document.
func Decompress(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("The document payload is not valid base64").
			Mark(ierr.ErrCodec)
	}

	reader, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		// Not a gzip stream; fall back to treating the bytes as plain XML.
		if looksLikeXML(raw) {
			return string(raw), nil
		}
		return "", ierr.WithError(err).
			WithHint("The document payload is neither gzip compressed nor plain XML").
			Mark(ierr.ErrCodec)
	}
	defer reader.Close()

	xml, err := io.ReadAll(reader)
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to decompress the document payload").
			Mark(ierr.ErrCodec)
	}

	if !looksLikeXML(xml) {
		return "", ierr.NewError("decompressed payload is not XML").
			WithHint("The document payload is corrupted").
			Mark(ierr.ErrCodec)
	}

	return string(xml), nil
}

// NormalizeSignaturePlacement relocates the digital signature block so that
// it sits immediately after the closing tag of the signed element. Some
// signers emit the signature at the end of the envelope instead of next to
// the element it attests to, which the authority's schema validation refuses.
//
// The operation is idempotent and returns the input unchanged when no
// signature block or no closing tag for signedElement is present.
func NormalizeSignaturePlacement(xml string, signedElement string) string {
	loc := signatureRe.FindStringIndex(xml)
	if loc == nil {
		return xml
	}
	signature := xml[loc[0]:loc[1]]
	stripped := xml[:loc[0]] + xml[loc[1]:]

	closingRe := regexp.MustCompile(fmt.Sprintf(`</(?:[A-Za-z_][\w.-]*:)?%s\s*>`, regexp.QuoteMeta(signedElement)))
	closing := closingRe.FindStringIndex(stripped)
	if closing == nil {
		return xml
	}

	return stripped[:closing[1]] + signature + stripped[closing[1]:]
}

func looksLikeXML(data []byte) bool {
	trimmed := strings.TrimSpace(string(data))
	return strings.HasPrefix(trimmed, "<") && strings.HasSuffix(trimmed, ">")
}
