package domain

import "strings"

// Address is a structured pickup or destination as entered on a booking form.
type Address struct {
	County   string
	District string
	Street   string
}

// FullAddress returns the address as a single string, parts concatenated without separators.
func (a Address) FullAddress() string {
	return a.County + a.District + a.Street
}

// MissingForQuote lists the parts a fare estimate cannot be made without:
// the pickup street and the destination district and street.
func MissingForQuote(pickup, destination Address) []string {
	var missing []string
	if strings.TrimSpace(pickup.Street) == "" {
		missing = append(missing, "Pickup.Street")
	}
	if strings.TrimSpace(destination.District) == "" {
		missing = append(missing, "Destination.District")
	}
	if strings.TrimSpace(destination.Street) == "" {
		missing = append(missing, "Destination.Street")
	}
	return missing
}
