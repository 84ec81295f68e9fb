// Package accesskey recovers a fiscal document's access key (chave de
// acesso) from the heterogeneous shapes upstream systems return: raw XML,
// compressed XML, response URLs and structured response fields.
//
// Extraction is organised as an ordered chain of pure strategies combined
// with a first-success-wins combinator. Absence of a key is a valid outcome
// and is never reported as an error.
package accesskey

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/notaflow/notaflow/internal/codec"
)

const (
	// MinExtractLen and MaxExtractLen bound the digit runs accepted during
	// extraction. The strict lengths a key may legally have are narrower,
	// see IsValid.
	MinExtractLen = 44
	MaxExtractLen = 60
)

var (
	attributeRe = regexp.MustCompile(`(?i)\bId\s*=\s*"[^"0-9]*([0-9]{44,60})(?:[^"0-9][^"]*)?"`)
	elementRe   = regexp.MustCompile(`(?is)<(?:[A-Za-z_][\w.-]*:)?chaveacesso[^>]*>\s*([0-9]{44,60})\s*</(?:[A-Za-z_][\w.-]*:)?chaveacesso>`)
	digitRunRe  = regexp.MustCompile(`[0-9]+`)
	digitsRe    = regexp.MustCompile(`^[0-9]+$`)
)

// Strategy attempts one way of recovering an access key from an input.
type Strategy func(input string) (string, bool)

// First returns the result of the first strategy that succeeds on the input.
func First(input string, strategies ...Strategy) (string, bool) {
	for _, strategy := range strategies {
		if key, ok := strategy(input); ok {
			return key, true
		}
	}
	return "", false
}

// FromXML extracts the access key from an XML document, trying in order an
// attribute-style match (Id="NFSe<key>"), an element-style match
// (<chaveAcesso>, case-insensitive) and the longest bare digit run as a last
// resort.
func FromXML(xml string) (string, bool) {
	return First(xml, fromAttribute, fromElement, fromDigitRun)
}

// FromURL extracts the access key from a response URL carrying it as a
// `chave` or `chaveAcesso` query parameter.
func FromURL(rawURL string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", false
	}
	query := parsed.Query()
	for _, name := range []string{"chaveAcesso", "chave"} {
		value := strings.TrimSpace(query.Get(name))
		if isExtractable(value) {
			return value, true
		}
	}
	return "", false
}

// FromEncodedXML decodes a base64(gzip) payload and extracts the key from
// the resulting XML. Plain base64 XML is tolerated by the codec fallback.
func FromEncodedXML(encoded string) (string, bool) {
	xml, err := codec.Decompress(encoded)
	if err != nil {
		return "", false
	}
	return FromXML(xml)
}

// Field is one candidate field of a structured authority response, in the
// order it should be tried.
type Field struct {
	Value string
	Kind  FieldKind
}

// FieldKind tells the extractor how to interpret a response field.
type FieldKind int

const (
	// FieldKey holds the access key directly
	FieldKey FieldKind = iota
	// FieldEncodedXML holds base64(gzip) XML that must be decompressed first
	FieldEncodedXML
	// FieldXML holds plain XML
	FieldXML
	// FieldURL holds a URL with the key as a query parameter
	FieldURL
)

// FromFields walks an ordered list of structured response fields and returns
// the first access key found.
func FromFields(fields []Field) (string, bool) {
	for _, field := range fields {
		if strings.TrimSpace(field.Value) == "" {
			continue
		}
		var key string
		var ok bool
		switch field.Kind {
		case FieldKey:
			if isExtractable(strings.TrimSpace(field.Value)) {
				key, ok = strings.TrimSpace(field.Value), true
			}
		case FieldEncodedXML:
			key, ok = FromEncodedXML(field.Value)
		case FieldXML:
			key, ok = FromXML(field.Value)
		case FieldURL:
			key, ok = FromURL(field.Value)
		}
		if ok {
			return key, true
		}
	}
	return "", false
}

// IsValid reports whether the value is a legally shaped access key. Both
// 44-digit and 50-digit keys are in circulation depending on the document's
// generation, so both are accepted.
func IsValid(key string) bool {
	if len(key) != 44 && len(key) != 50 {
		return false
	}
	return digitsRe.MatchString(key)
}

func fromAttribute(xml string) (string, bool) {
	if m := attributeRe.FindStringSubmatch(xml); m != nil {
		return m[1], true
	}
	return "", false
}

func fromElement(xml string) (string, bool) {
	if m := elementRe.FindStringSubmatch(xml); m != nil {
		return m[1], true
	}
	return "", false
}

// fromDigitRun picks the longest maximal digit run within the extraction
// bounds. Runs longer than MaxExtractLen are not keys and must not be
// clipped into one.
func fromDigitRun(xml string) (string, bool) {
	var longest string
	for _, run := range digitRunRe.FindAllString(xml, -1) {
		if len(run) < MinExtractLen || len(run) > MaxExtractLen {
			continue
		}
		if len(run) > len(longest) {
			longest = run
		}
	}
	if longest == "" {
		return "", false
	}
	return longest, true
}

func isExtractable(value string) bool {
	if len(value) < MinExtractLen || len(value) > MaxExtractLen {
		return false
	}
	return digitsRe.MatchString(value)
}
