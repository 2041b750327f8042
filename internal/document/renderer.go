package document

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"time"

	"github.com/fogleman/gg"

	"github.com/attestia/attestia/internal/verifcode"
)

const (
	defaultDateLayout = "02/01/2006"
	defaultColor      = "#1a1a1a"
)

// Renderer produces the finished attestation document as PNG bytes. Output
// is deterministic for identical inputs: nothing wall-clock-derived is drawn
// unless it arrives as an explicit field value.
type Renderer struct {
	signer *verifcode.Signer
	fonts  *FontResolver
	logger *slog.Logger
}

// NewRenderer builds a renderer around the verification-code signer and a
// font resolver.
func NewRenderer(signer *verifcode.Signer, fonts *FontResolver, logger *slog.Logger) *Renderer {
	return &Renderer{signer: signer, fonts: fonts, logger: logger}
}

// TextAnchor converts a field's top-left configuration coordinate into the
// canvas drawing anchor. The canvas positions text by baseline, so the
// baseline sits one font-size below the configured top edge.
func TextAnchor(f Field) (x, y float64) {
	return f.X, f.Y + f.FontSize
}

// ImageAnchor converts a field's configuration coordinate into the canvas
// top-left anchor for raster elements.
func ImageAnchor(f Field) (x, y float64) {
	return f.X, f.Y
}

// Render draws every template field in array order over the background and
// returns the encoded document. A nil or malformed config falls back to the
// built-in minimal layout. Optional assets degrade to omission with a logged
// warning; a failure to produce the verification-code image is fatal.
func (r *Renderer) Render(cfg *TemplateConfig, values map[string]string, payload verifcode.Payload, signature image.Image) ([]byte, error) {
	if !cfg.Valid() {
		if cfg != nil {
			r.logger.Warn("template config malformed, using fallback layout", "version", cfg.Version)
		}
		cfg = fallbackTemplate()
	}

	dc := gg.NewContext(int(cfg.PageWidth), int(cfg.PageHeight))
	dc.SetHexColor("#ffffff")
	dc.Clear()

	if cfg.BackgroundAsset != "" {
		bg, err := gg.LoadImage(cfg.BackgroundAsset)
		if err != nil {
			r.logger.Warn("background asset unavailable, omitting", "asset", cfg.BackgroundAsset, "error", err)
		} else {
			r.drawScaled(dc, bg, 0, 0, cfg.PageWidth, cfg.PageHeight)
		}
	}

	for _, field := range cfg.Fields {
		switch field.Kind {
		case KindText:
			r.drawText(dc, field, values[field.ID])
		case KindDate:
			r.drawText(dc, field, r.formatDate(field, values[field.ID]))
		case KindVerificationCode:
			img, err := r.signer.QRImage(payload, int(field.Width))
			if err != nil {
				return nil, fmt.Errorf("verification code image: %w", err)
			}
			x, y := ImageAnchor(field)
			r.drawScaled(dc, img, x, y, field.Width, field.Height)
		case KindSignatureImage:
			if signature == nil {
				r.logger.Warn("signature image unavailable, omitting", "field", field.ID)
				continue
			}
			x, y := ImageAnchor(field)
			r.drawScaled(dc, signature, x, y, field.Width, field.Height)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return buf.Bytes(), nil
}

// StampSignature draws the signatory's signature image onto an already
// rendered document at the configured stamp box and re-encodes it.
func (r *Renderer) StampSignature(docPNG []byte, signature image.Image, x, y, width, height float64) ([]byte, error) {
	if signature == nil {
		return nil, fmt.Errorf("signature image is required")
	}
	base, err := png.Decode(bytes.NewReader(docPNG))
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	dc := gg.NewContextForImage(base)
	r.drawScaled(dc, signature, x, y, width, height)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) drawText(dc *gg.Context, field Field, value string) {
	if value == "" {
		return
	}
	text := field.Prefix + value + field.Suffix

	dc.SetFontFace(r.fonts.Resolve(field.FontFamily, field.FontWeight, field.FontSize))
	color := field.Color
	if color == "" {
		color = defaultColor
	}
	dc.SetHexColor(color)

	x, y := TextAnchor(field)
	switch field.Align {
	case "center":
		w, _ := dc.MeasureString(text)
		x -= w / 2
	case "right":
		w, _ := dc.MeasureString(text)
		x -= w
	}
	dc.DrawString(text, x, y)
}

func (r *Renderer) formatDate(field Field, value string) string {
	if value == "" {
		return ""
	}
	layout := field.Format
	if layout == "" {
		layout = defaultDateLayout
	}
	for _, parseLayout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(parseLayout, value); err == nil {
			return t.Format(layout)
		}
	}
	r.logger.Warn("date value not parseable, drawing raw", "field", field.ID, "value", value)
	return value
}

func (r *Renderer) drawScaled(dc *gg.Context, img image.Image, x, y, width, height float64) {
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return
	}
	if width <= 0 {
		width = float64(bounds.Dx())
	}
	if height <= 0 {
		height = float64(bounds.Dy())
	}
	dc.Push()
	dc.Translate(x, y)
	dc.Scale(width/float64(bounds.Dx()), height/float64(bounds.Dy()))
	dc.DrawImage(img, 0, 0)
	dc.Pop()
}

// fallbackTemplate is the hard-coded minimal layout used when no usable
// template configuration is available: title, subject block, dates and the
// verification image.
func fallbackTemplate() *TemplateConfig {
	return &TemplateConfig{
		Version:    0,
		PageWidth:  1240,
		PageHeight: 1754,
		Fields: []Field{
			{ID: "title", Kind: KindText, X: 620, Y: 140, FontSize: 36, FontWeight: WeightBold, Align: "center"},
			{ID: "number", Kind: KindText, X: 620, Y: 200, FontSize: 18, Align: "center", Prefix: "N° "},
			{ID: "subject_name", Kind: KindText, X: 200, Y: 420, FontSize: 24, FontWeight: WeightBold},
			{ID: "subject_given_name", Kind: KindText, X: 200, Y: 470, FontSize: 24},
			{ID: "birth_date", Kind: KindDate, X: 200, Y: 530, FontSize: 18, Prefix: "Born on "},
			{ID: "service_start", Kind: KindDate, X: 200, Y: 600, FontSize: 18, Prefix: "From "},
			{ID: "service_end", Kind: KindDate, X: 200, Y: 640, FontSize: 18, Prefix: "To "},
			{ID: "verification", Kind: KindVerificationCode, X: 980, Y: 1450, Width: 180, Height: 180},
			{ID: "signature", Kind: KindSignatureImage, X: 760, Y: 1200, Width: 300, Height: 120},
		},
	}
}
