package domain

import (
	"fmt"
	"strings"
)

// Venue identifica el mecanismo de trading de un par.
type Venue int

const (
	VenueUnknown Venue = iota
	VenueV2            // pool constant-product (PancakeSwap V2)
	VenueV3            // pool de liquidez concentrada (PancakeSwap V3)
	VenueFourMeme      // bonding curve de lanzamiento
)

// String devuelve el código corto usado en la config (`dexes`).
func (v Venue) String() string {
	switch v {
	case VenueV2:
		return "v2"
	case VenueV3:
		return "v3"
	case VenueFourMeme:
		return "fm"
	default:
		return "unknown"
	}
}

// Label devuelve la etiqueta usada en logs y en el audit.
func (v Venue) Label() string {
	switch v {
	case VenueFourMeme:
		return "FM"
	default:
		return strings.ToUpper(v.String())
	}
}

// BondingCurve indica si el venue no tiene pool de liquidez (sin filtro de liquidez).
func (v Venue) BondingCurve() bool {
	return v == VenueFourMeme
}

// ParseVenue acepta "v2", "v3", "fm" (o "fourmeme").
func ParseVenue(s string) (Venue, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "v2":
		return VenueV2, nil
	case "v3":
		return VenueV3, nil
	case "fm", "fourmeme", "four_meme":
		return VenueFourMeme, nil
	default:
		return VenueUnknown, fmt.Errorf("unknown venue %q", s)
	}
}

// MarshalText permite usar Venue en JSON y YAML.
func (v Venue) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText parsea el código corto.
func (v *Venue) UnmarshalText(b []byte) error {
	parsed, err := ParseVenue(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// PairKey normaliza un identificador de par: trim + lowercase.
func PairKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
