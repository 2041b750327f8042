package verifcode

import (
	"fmt"
	"strings"
)

// Payload carries the identifying fields covered by the tamper-evident
// signature. It is immutable once produced; the signature is always derived
// from these fields, never stored apart from them.
type Payload struct {
	ID               string `json:"id"`
	Number           string `json:"number"`
	SubjectName      string `json:"subject_name"`
	SubjectGivenName string `json:"subject_given_name"`
	SubjectBirthDate string `json:"subject_birth_date"`
	IssuedAtEpochMs  int64  `json:"issued_at_epoch_ms"`
}

// canonicalSeparator joins payload fields in the canonical string. The order
// and separator are part of the signature contract and must never change for
// issued documents.
const canonicalSeparator = "|"

// CanonicalString concatenates the identifying fields in the fixed signing
// order: id, number, name, given name, birth date, issuance epoch.
func (p Payload) CanonicalString() string {
	return strings.Join([]string{
		p.ID,
		p.Number,
		p.SubjectName,
		p.SubjectGivenName,
		p.SubjectBirthDate,
		fmt.Sprintf("%d", p.IssuedAtEpochMs),
	}, canonicalSeparator)
}
