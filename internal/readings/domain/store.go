package readings

// Store keeps classified readings per unit.
type Store interface {
	Append(unitID string, reading Reading)
	Recent(unitID string, n int) []Reading
	Alerts(unitID string, n int) []Reading
}
