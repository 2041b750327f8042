package certificate

import (
	"time"

	"github.com/attestia/attestia/internal/verifcode"
)

// Certificate lifecycle states. Transitions only move forward:
// generated -> signed, never back.
const (
	StatusGenerated = "generated"
	StatusSigned    = "signed"
)

// Signature kinds recorded on the certificate.
const (
	SignatureKindElectronic = "electronic"
)

// Certificate is one issued service-completion attestation. Number is
// assigned once and never changes.
type Certificate struct {
	ID            string
	Number        string
	RenderedPath  string
	Payload       verifcode.Payload
	Status        string
	SignatureKind string
	GeneratedAt   time.Time
	SignedAt      time.Time
	SignatoryID   string
}

// Subject is the applicant record supplied by the intake collaborators.
type Subject struct {
	Name            string `json:"name"`
	GivenName       string `json:"given_name"`
	BirthDate       string `json:"birth_date"`
	Diploma         string `json:"diploma,omitempty"`
	ServiceStart    string `json:"service_start"`
	ServiceEnd      string `json:"service_end"`
	Promotion       string `json:"promotion,omitempty"`
	ServiceLocation string `json:"service_location,omitempty"`
}
