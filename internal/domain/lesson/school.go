package lesson

import "sort"

// Schools offered in the booking dialogue. Lessons may still carry other names.
var Schools = []string{
	"Yarko",
	"Uknow",
	"Shabadoo",
}

// IsKnownSchool reports whether name is one of Schools.
func IsKnownSchool(name string) bool {
	for _, s := range Schools {
		if s == name {
			return true
		}
	}
	return false
}

// OrderSchools returns names with known schools first, in their fixed order,
// followed by the remaining names alphabetically.
func OrderSchools(names []string) []string {
	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}
	out := make([]string, 0, len(present))
	for _, s := range Schools {
		if present[s] {
			out = append(out, s)
			delete(present, s)
		}
	}
	rest := make([]string, 0, len(present))
	for n := range present {
		rest = append(rest, n)
	}
	sort.Strings(rest)
	return append(out, rest...)
}
