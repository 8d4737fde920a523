package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddress_FullAddress(t *testing.T) {
	a := Address{County: "高雄市", District: "鳳山區", Street: "光復路"}
	assert.Equal(t, "高雄市鳳山區光復路", a.FullAddress())
	assert.Equal(t, "高雄市光復路", Address{County: "高雄市", Street: "光復路"}.FullAddress())
}

func TestMissingForQuote(t *testing.T) {
	pickup := Address{County: "高雄市", Street: "光復路"}
	destination := Address{County: "高雄市", District: "苓雅區", Street: "四維路"}
	assert.Empty(t, MissingForQuote(pickup, destination), "pickup district is optional")

	assert.Equal(t, []string{"Pickup.Street"}, MissingForQuote(Address{District: "鳳山區"}, destination))
	assert.Equal(t, []string{"Destination.District"}, MissingForQuote(pickup, Address{Street: "四維路"}))
	assert.Equal(t,
		[]string{"Pickup.Street", "Destination.District", "Destination.Street"},
		MissingForQuote(Address{}, Address{County: "高雄市"}))
}
