package provision

// LowestFreePort returns the lowest port >= base not present in used.
// Collision avoidance is best-effort: the port is not reserved, and a
// race with a concurrent allocation is accepted under single-tenant
// usage.
func LowestFreePort(used []int, base int) int {
	inUse := make(map[int]bool, len(used))
	for _, p := range used {
		inUse[p] = true
	}

	port := base
	for inUse[port] {
		port++
	}
	return port
}
