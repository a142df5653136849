package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"

	"github.com/gosimple/unidecode"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// MaxAnswerLength bounds the normalized length of a submitted answer
const MaxAnswerLength = 100

var (
	ErrEmptyAnswer   = errors.New("answer cannot be empty")
	ErrAnswerTooLong = errors.New("answer is too long")
)

var (
	nonWordRe    = regexp.MustCompile(`[^\w\s]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Normalize folds an answer to its comparable form: NFKC, ASCII
// transliteration, lowercase, punctuation stripped, whitespace collapsed and
// trimmed. Normalize(Normalize(x)) == Normalize(x) for every x.
//
// Accented letters are transliterated rather than dropped, so "Café" and
// "cafe" hash the same. A normalizer that only strips non-ASCII would give
// "caf" instead; answer hashes made that way must be re-created with
// HashAnswer before import.
func Normalize(text string) string {
	s := norm.NFKC.String(text)
	s = unidecode.Unidecode(s)
	s = cases.Lower(language.Und).String(s)
	s = nonWordRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// HashAnswer returns hex SHA-256 of the normalized answer
func HashAnswer(text string) string {
	return sha256Hex(Normalize(text))
}

// HashCode returns hex SHA-256 of a chapter code. Codes are only lowercased
// and trimmed; punctuation is significant.
func HashCode(code string) string {
	return sha256Hex(strings.ToLower(strings.TrimSpace(code)))
}

// ValidateAnswer rejects answers that normalize to nothing or are too long
func ValidateAnswer(text string) error {
	n := Normalize(text)
	if n == "" {
		return ErrEmptyAnswer
	}
	if len(n) > MaxAnswerLength {
		return ErrAnswerTooLong
	}
	return nil
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
