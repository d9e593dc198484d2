// Package engine contiene lo que comparten el trader real y el simulador:
// la cadena de admisión de compras y los filtros de nombres.
package engine

import "unicode/utf8"

// Book es la vista del libro de posiciones que necesita la admisión.
type Book interface {
	HasPositionOrBlocked(key string) bool
	OpenCount() int
}

// SymbolLen es el largo máximo de un símbolo en las líneas del audit.
const SymbolLen = 24

// TruncateStr trunca un string a maxLen runas añadiendo "..." si es necesario.
func TruncateStr(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string([]rune(s)[:maxLen])
	}
	return string([]rune(s)[:maxLen-3]) + "..."
}
