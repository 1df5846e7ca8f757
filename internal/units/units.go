// Package units provides shared constants and validation for momentum units
package units

import "strings"

// Unit constants
const (
	MeV = "MeV"
	GeV = "GeV"
	TeV = "TeV"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MeV, GeV, TeV}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// perGeV returns how many of unit make up one GeV.
func perGeV(unit string) float64 {
	switch unit {
	case MeV:
		return 1e3
	case TeV:
		return 1e-3
	default:
		return 1 // GeV, or unknown
	}
}

// ConvertFromGeV converts a momentum or mass from GeV to the target unit.
// Unknown units are treated as GeV.
func ConvertFromGeV(valueGeV float64, targetUnit string) float64 {
	return valueGeV * perGeV(targetUnit)
}

// ConvertToGeV converts a momentum or mass in unit to GeV.
func ConvertToGeV(value float64, unit string) float64 {
	return value / perGeV(unit)
}
