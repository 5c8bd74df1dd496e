// Package engine contiene helpers compartidos por los engines de ejecución.
package engine

import (
	"strings"

	"github.com/alejandrodnm/wxbot/internal/domain"
)

// TruncateStr trunca un string a maxLen caracteres añadiendo "..." si es necesario.
func TruncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// NormalizeLocation es la clave con la que se cruzan instrumentos y lecturas:
// minúsculas y sin espacios sobrantes.
func NormalizeLocation(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// LocationNames devuelve las claves normalizadas de las ubicaciones.
func LocationNames(locs []domain.Location) []string {
	out := make([]string, 0, len(locs))
	for _, l := range locs {
		out = append(out, NormalizeLocation(l.Name))
	}
	return out
}
