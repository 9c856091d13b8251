package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordClone(t *testing.T) {
	var nilRec *Record
	assert.Nil(t, nilRec.Clone())

	lat := 48.85
	orig := &Record{IP: "1.2.3.4", CountryCode: "FR", Latitude: &lat, Network: &Network{ASN: 3215, Organization: "Orange", CIDR: "1.2.3.0/24"}}
	c := orig.Clone()
	assert.Equal(t, orig, c)
	assert.NotSame(t, orig.Latitude, c.Latitude)
	assert.NotSame(t, orig.Network, c.Network)
	assert.Nil(t, c.Longitude)

	*c.Latitude = 0
	c.Network.Organization = "x"
	assert.Equal(t, 48.85, *orig.Latitude)
	assert.Equal(t, "Orange", orig.Organization)
}
