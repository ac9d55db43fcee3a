package scopes

import "strings"

// Encode maps a scope set to its positional bitstring: '1' at each granted
// position, '0' elsewhere. The string is only as long as the highest granted
// position requires, so token size tracks privilege, not catalogue size.
// Unknown names are skipped; input order does not affect the output.
func Encode(granted []Scope) string {
	var str string
	for _, name := range granted {
		def, ok := byName[name]
		if !ok {
			continue
		}
		if len(str) <= def.Position {
			for len(str) < def.Position {
				str += "0"
			}
			str += "1"
		} else {
			str = str[:def.Position] + "1" + str[def.Position+1:]
		}
	}
	return str
}

// Has reports whether the bitstring grants the named scope. Positions beyond
// the string's length are ungranted.
func Has(bitstring string, name Scope) bool {
	def, ok := byName[name]
	if !ok {
		return false
	}
	return def.Position < len(bitstring) && bitstring[def.Position] == '1'
}

// Decode recovers the granted scope set from a bitstring, in catalogue order.
func Decode(bitstring string) []Scope {
	var out []Scope
	for _, def := range catalogue {
		if def.Position < len(bitstring) && bitstring[def.Position] == '1' {
			out = append(out, def.Name)
		}
	}
	return out
}

// Missing returns the subset of required scopes the bitstring does not grant.
func Missing(bitstring string, required []Scope) []Scope {
	var missing []Scope
	for _, name := range required {
		if !Has(bitstring, name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Format renders a scope list for log and error messages.
func Format(granted []Scope) string {
	parts := make([]string, len(granted))
	for i, s := range granted {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}
