package scopes

// Scope is a named permission unit. Its catalogue position doubles as its
// bit index inside encoded access tokens.
type Scope string

// Definition binds a scope name to its stable catalogue position and the
// subscription features that unlock it. An empty Features list means the
// scope is available on every tier.
type Definition struct {
	Name     Scope
	Position int
	Features []string
}

// AdminPanelAccess marks platform administrators. It is excluded from the
// regular user catalogue and only ever granted through the admin team.
const AdminPanelAccess Scope = "ADMIN_PANEL_ACCESS"

// The catalogue is append-only. Positions of existing entries must never
// change: every outstanding access token encodes scopes by position.
var catalogue = []Definition{
	{Name: AdminPanelAccess, Position: 0},
	{Name: "WA_STATE", Position: 1},
	{Name: "MESSAGES_SEND", Position: 2},
	{Name: "MESSAGES_SEND_TO_ALL", Position: 3, Features: []string{"broadcast"}},
	{Name: "MESSAGES_READ", Position: 4},
	{Name: "CONTACTS_READ", Position: 5},
	{Name: "CONTACTS_UPDATE", Position: 6},
	{Name: "NOTIFICATIONS_SEND", Position: 7},
	{Name: "TEAMMEMBERS_READ", Position: 8},
	{Name: "TEAMMEMBERS_UPDATE", Position: 9},
	{Name: "TEAMLINK_READ", Position: 10},
	{Name: "TEAMLINK_CREATE", Position: 11},
	{Name: "PAYMENTS_READ", Position: 12},
	{Name: "CAMPAIGNS_READ", Position: 13, Features: []string{"campaigns"}},
	{Name: "CAMPAIGNS_UPDATE", Position: 14, Features: []string{"campaigns"}},
	{Name: "INTEGRATIONS_UPDATE", Position: 15, Features: []string{"integrations"}},
}

var byName = func() map[Scope]Definition {
	m := make(map[Scope]Definition, len(catalogue))
	for _, def := range catalogue {
		m[def.Name] = def
	}
	return m
}()

// All returns every scope in catalogue order.
func All() []Scope {
	out := make([]Scope, len(catalogue))
	for i, def := range catalogue {
		out[i] = def.Name
	}
	return out
}

// AllUser returns the scopes a regular user may hold, i.e. everything
// except admin panel access.
func AllUser() []Scope {
	out := make([]Scope, 0, len(catalogue)-1)
	for _, def := range catalogue {
		if def.Name == AdminPanelAccess {
			continue
		}
		out = append(out, def.Name)
	}
	return out
}

// Base returns the user scopes that carry no feature requirement. These are
// usable without knowing which subscription is active.
func Base() []Scope {
	out := make([]Scope, 0, len(catalogue))
	for _, def := range catalogue {
		if def.Name == AdminPanelAccess || len(def.Features) > 0 {
			continue
		}
		out = append(out, def.Name)
	}
	return out
}

// ForFeatures returns the user scopes unlocked by the supplied feature set:
// scopes without requirements plus those with at least one matching feature.
func ForFeatures(features []string) []Scope {
	have := make(map[string]struct{}, len(features))
	for _, f := range features {
		have[f] = struct{}{}
	}

	out := make([]Scope, 0, len(catalogue))
	for _, def := range catalogue {
		if def.Name == AdminPanelAccess {
			continue
		}
		if len(def.Features) == 0 {
			out = append(out, def.Name)
			continue
		}
		for _, f := range def.Features {
			if _, ok := have[f]; ok {
				out = append(out, def.Name)
				break
			}
		}
	}
	return out
}

// Lookup returns the definition for a scope name.
func Lookup(name Scope) (Definition, bool) {
	def, ok := byName[name]
	return def, ok
}

// Validate reports the first unknown scope name, if any.
func Validate(names []Scope) (Scope, bool) {
	for _, name := range names {
		if _, ok := byName[name]; !ok {
			return name, false
		}
	}
	return "", true
}
