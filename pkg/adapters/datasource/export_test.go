package datasource

// PerformCleanup runs one idle sweep synchronously.
func (m *ConnectionManager) PerformCleanup() {
	m.performCleanup()
}
