package identity

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	for _, s := range []string{"user:5", "admin:1", "mentor:42"} {
		p, err := Parse(s)
		require.NoError(t, err)
		assert.Equal(t, s, p.String())
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "user", "user:", "user:abc", "ghost:3", "user:0", "user:-1"} {
		_, err := Parse(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestEqualIsStructural(t *testing.T) {
	a := Participant{Kind: KindUser, ID: 5}
	assert.True(t, a.Equal(Participant{Kind: KindUser, ID: 5}))
	assert.False(t, a.Equal(Participant{Kind: KindMentor, ID: 5}))
	assert.False(t, a.Equal(Participant{Kind: KindUser, ID: 6}))
}

func TestPairKeyIsUnordered(t *testing.T) {
	a := Participant{Kind: KindUser, ID: 5}
	b := Participant{Kind: KindMentor, ID: 3}
	assert.Equal(t, PairKey(a, b), PairKey(b, a))
	assert.NotEqual(t, PairKey(a, b), PairKey(a, Participant{Kind: KindMentor, ID: 4}))
}

func TestSlotsExactlyOneSet(t *testing.T) {
	u, a, m := Participant{Kind: KindMentor, ID: 3}.Slots()
	assert.False(t, u.Valid)
	assert.False(t, a.Valid)
	require.True(t, m.Valid)
	assert.EqualValues(t, 3, m.Int64)

	p, err := FromSlots("mentor", u, a, m)
	require.NoError(t, err)
	assert.Equal(t, Participant{Kind: KindMentor, ID: 3}, p)
}

func TestFromSlotsRejectsMismatch(t *testing.T) {
	_, err := FromSlots("user", sql.NullInt64{}, sql.NullInt64{Int64: 1, Valid: true}, sql.NullInt64{})
	assert.Error(t, err)
}

func TestDedup(t *testing.T) {
	a := Participant{Kind: KindUser, ID: 5}
	b := Participant{Kind: KindMentor, ID: 3}
	assert.Equal(t, []Participant{a, b}, Dedup([]Participant{a, b, a, b, a}))
}
