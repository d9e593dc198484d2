package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Blocklist descarta símbolos que contienen alguno de los términos (sin distinguir mayúsculas).
type Blocklist struct {
	terms []string
}

// NewBlocklist crea una blocklist a partir de los términos dados. Los vacíos se ignoran.
func NewBlocklist(terms []string) *Blocklist {
	b := &Blocklist{}
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			b.terms = append(b.terms, t)
		}
	}
	return b
}

// LoadBlocklist lee un array JSON de strings. Si path está vacío o no existe,
// devuelve una lista vacía.
func LoadBlocklist(path string) (*Blocklist, error) {
	if path == "" {
		return NewBlocklist(nil), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewBlocklist(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("engine.LoadBlocklist: read %s: %w", path, err)
	}
	var terms []string
	if err := json.Unmarshal(data, &terms); err != nil {
		return nil, fmt.Errorf("engine.LoadBlocklist: parse %s: %w", path, err)
	}
	return NewBlocklist(terms), nil
}

// Blocked devuelve el término que coincide, si lo hay.
func (b *Blocklist) Blocked(name string) (string, bool) {
	if b == nil {
		return "", false
	}
	n := strings.ToLower(name)
	for _, t := range b.terms {
		if strings.Contains(n, t) {
			return t, true
		}
	}
	return "", false
}

// Len devuelve el número de términos.
func (b *Blocklist) Len() int {
	if b == nil {
		return 0
	}
	return len(b.terms)
}

var cjkRanges = [][2]rune{
	{0x4E00, 0x9FFF},
	{0x3400, 0x4DBF},
	{0x20000, 0x2A6DF},
	{0x2A700, 0x2B73F},
	{0x2B740, 0x2B81F},
	{0x2B820, 0x2CEAF},
}

// ContainsCJK indica si s tiene algún ideograma CJK.
func ContainsCJK(s string) bool {
	for _, r := range s {
		for _, rg := range cjkRanges {
			if r >= rg[0] && r <= rg[1] {
				return true
			}
		}
	}
	return false
}
