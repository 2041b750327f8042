package document

import (
	"encoding/json"
	"fmt"
	"os"
)

// FieldKind enumerates the renderable field types. The renderer switches over
// this exhaustively; adding a kind is a compile-time-checked change.
type FieldKind int

const (
	KindText FieldKind = iota
	KindDate
	KindVerificationCode
	KindSignatureImage
)

var fieldKindNames = map[string]FieldKind{
	"text":              KindText,
	"date":              KindDate,
	"verification_code": KindVerificationCode,
	"signature_image":   KindSignatureImage,
}

// UnmarshalJSON maps the configuration-file kind strings onto the enum.
func (k *FieldKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	kind, ok := fieldKindNames[s]
	if !ok {
		return fmt.Errorf("unknown field kind %q", s)
	}
	*k = kind
	return nil
}

// MarshalJSON renders the enum back to its configuration string.
func (k FieldKind) MarshalJSON() ([]byte, error) {
	for name, kind := range fieldKindNames {
		if kind == k {
			return json.Marshal(name)
		}
	}
	return nil, fmt.Errorf("unknown field kind %d", k)
}

// Field places one element on the document. Coordinates are top-left-origin
// in configuration space.
type Field struct {
	ID         string    `json:"id"`
	Kind       FieldKind `json:"kind"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Width      float64   `json:"width,omitempty"`
	Height     float64   `json:"height,omitempty"`
	FontSize   float64   `json:"font_size,omitempty"`
	FontFamily string    `json:"font_family,omitempty"`
	FontWeight string    `json:"font_weight,omitempty"`
	Color      string    `json:"color,omitempty"`
	Align      string    `json:"align,omitempty"`
	Format     string    `json:"format,omitempty"`
	Prefix     string    `json:"prefix,omitempty"`
	Suffix     string    `json:"suffix,omitempty"`
}

// TemplateConfig is the declarative field-placement description. The renderer
// treats it as read-only input owned by the configuration collaborators.
type TemplateConfig struct {
	Version         int     `json:"version"`
	BackgroundAsset string  `json:"background_asset,omitempty"`
	PageWidth       float64 `json:"page_width"`
	PageHeight      float64 `json:"page_height"`
	Fields          []Field `json:"fields"`
}

// Valid reports whether the config is usable by the renderer: a positive page
// size, at least one field, and the mandatory verification-code field. A
// layout without the tamper-evident code must never be rendered.
func (c *TemplateConfig) Valid() bool {
	return c != nil && c.PageWidth > 0 && c.PageHeight > 0 && len(c.Fields) > 0 &&
		c.hasVerificationCode()
}

func (c *TemplateConfig) hasVerificationCode() bool {
	for _, f := range c.Fields {
		if f.Kind == KindVerificationCode {
			return true
		}
	}
	return false
}

// LoadTemplate reads a template configuration from a JSON file.
func LoadTemplate(path string) (*TemplateConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	var cfg TemplateConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	if !cfg.Valid() {
		return nil, fmt.Errorf("template missing page size, fields, or the verification-code field")
	}
	return &cfg, nil
}
