package gdpull

// Map applies fn to every element of s.
func Map[E, F any](s []E, fn func(E) F) []F {
	out := make([]F, 0, len(s))
	for _, v := range s {
		out = append(out, fn(v))
	}
	return out
}
