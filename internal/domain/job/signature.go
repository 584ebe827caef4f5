package job

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// signatureSeparator is the ASCII unit separator; it does not occur in
// titles, URLs or company names.
const signatureSeparator = "\x1f"

// Signature derives the stable identity of a listing. Inputs are trimmed,
// whitespace-collapsed and case-folded before hashing, so " Acme " and
// "acme" produce the same value. Empty fields are hashed as-is.
func Signature(url, title, company string) string {
	payload := strings.Join([]string{
		NormalizeField(url),
		NormalizeField(title),
		NormalizeField(company),
	}, signatureSeparator)

	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// NormalizeField composes unicode (so "José" typed either way matches),
// collapses whitespace and folds case.
func NormalizeField(s string) string {
	s = norm.NFC.String(s)
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}
