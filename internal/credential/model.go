package credential

import "time"

// Two-factor methods selectable per signatory.
const (
	MethodEmail = "email"
	MethodTOTP  = "totp"
)

// Credential holds a signatory's possession-factor PIN and two-factor
// material. Only this package mutates it.
type Credential struct {
	UserID          string
	PINHash         []byte
	AttemptCount    int
	LockedUntil     time.Time
	SignatureAsset  string
	StampX          float64
	StampY          float64
	StampWidth      float64
	StampHeight     float64
	TwoFactorMethod string
	TOTPSecretEnc   []byte
	BackupCodesEnc  []byte
	// TOTPLastStep is the last accepted time step, kept to refuse replay of a
	// code within its validity window.
	TOTPLastStep int64
	Enabled      bool
	UpdatedAt    time.Time
}

// StampBox is the configured position and size of the signature stamp.
type StampBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}
