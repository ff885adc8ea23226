package models

import "time"

// Provenance identifies a piece of generated code and who produced it
type Provenance struct {
	CodeHash  string    `json:"code_hash"`
	Signature string    `json:"signature"`
	Algorithm string    `json:"algorithm"`
	KeyID     string    `json:"key_id,omitempty"`
	SignedAt  time.Time `json:"signed_at"`
}
