package mask

import (
	"testing"

	"github.com/earthcomputing/cellfabric/names"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskAlgebra(t *testing.T) {
	m := New(3).Or(New(5)).Or(New(9))
	assert.True(t, m.And(m.Not()).Equal(Empty()))
}

func TestMaskOrNotIsFullWithinRange(t *testing.T) {
	nPorts := names.PortNo(10)
	full := All(nPorts)
	m := New(3).Or(New(5))
	// m.Or(m.Not()) is full over the *entire* representable range, which
	// is a superset of [0,nPorts]; restrict the comparison to that range.
	combined := m.Or(m.Not())
	for p := names.PortNo(0); p <= nPorts; p++ {
		assert.True(t, combined.Has(p))
	}
	_ = full
}

func TestMakePortNosRoundTrip(t *testing.T) {
	m := New(1).Or(New(4)).Or(New(8))
	nos := m.PortNos()
	require.Equal(t, []names.PortNo{1, 4, 8}, nos)
	assert.True(t, Make(nos).Equal(m))
}

func TestPortNumberBounds(t *testing.T) {
	_, err := names.NewPortNumber(5, 3)
	require.Error(t, err)
	var pnErr *names.PortNumberError
	require.ErrorAs(t, err, &pnErr)
	assert.Equal(t, names.PortNo(3), pnErr.Max)

	pn, err := names.NewPortNumber(2, 3)
	require.NoError(t, err)
	assert.Equal(t, names.PortNo(2), pn.No())
}

func TestDefaultUserExcludesSelfLoop(t *testing.T) {
	du := DefaultUser(5)
	assert.False(t, du.Has(0))
	for p := names.PortNo(1); p <= 5; p++ {
		assert.True(t, du.Has(p))
	}
}
