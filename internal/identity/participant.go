package identity

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Kind names one of the three identity spaces a participant can belong to.
type Kind string

const (
	KindUser   Kind = "user"
	KindAdmin  Kind = "admin"
	KindMentor Kind = "mentor"
)

func (k Kind) Valid() bool {
	return k == KindUser || k == KindAdmin || k == KindMentor
}

// Participant identifies one person across the three identity spaces.
// Equality is structural: same kind, same id.
type Participant struct {
	Kind Kind `json:"kind"`
	ID   int  `json:"id"`
}

func (p Participant) Equal(o Participant) bool {
	return p.Kind == o.Kind && p.ID == o.ID
}

func (p Participant) Valid() bool {
	return p.Kind.Valid() && p.ID > 0
}

// String renders the canonical "kind:id" form used as a storage key.
func (p Participant) String() string {
	return fmt.Sprintf("%s:%d", p.Kind, p.ID)
}

// Parse reads the canonical "kind:id" form back into a Participant.
func Parse(s string) (Participant, error) {
	kind, idStr, ok := strings.Cut(s, ":")
	if !ok {
		return Participant{}, errors.Errorf("identity: malformed participant %q", s)
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return Participant{}, errors.Wrapf(err, "identity: malformed participant %q", s)
	}
	p := Participant{Kind: Kind(kind), ID: id}
	if !p.Valid() {
		return Participant{}, errors.Errorf("identity: malformed participant %q", s)
	}
	return p, nil
}

// Slots splits the participant into the three nullable foreign-key columns
// the schema stores alongside the kind discriminator. Exactly one is valid.
func (p Participant) Slots() (userID, adminID, mentorID sql.NullInt64) {
	v := sql.NullInt64{Int64: int64(p.ID), Valid: true}
	switch p.Kind {
	case KindUser:
		userID = v
	case KindAdmin:
		adminID = v
	case KindMentor:
		mentorID = v
	}
	return userID, adminID, mentorID
}

// FromSlots rebuilds a Participant from the kind discriminator and the three
// slot columns as scanned from a row.
func FromSlots(kind string, userID, adminID, mentorID sql.NullInt64) (Participant, error) {
	p := Participant{Kind: Kind(kind)}
	switch {
	case p.Kind == KindUser && userID.Valid:
		p.ID = int(userID.Int64)
	case p.Kind == KindAdmin && adminID.Valid:
		p.ID = int(adminID.Int64)
	case p.Kind == KindMentor && mentorID.Valid:
		p.ID = int(mentorID.Int64)
	default:
		return Participant{}, errors.Errorf("identity: inconsistent slots for kind %q", kind)
	}
	return p, nil
}

// PairKey builds the canonical key for an unordered pair of participants.
// Direct conversations are deduplicated on this key, so PairKey(a, b) must
// equal PairKey(b, a).
func PairKey(a, b Participant) string {
	x, y := a.String(), b.String()
	if x > y {
		x, y = y, x
	}
	return x + "|" + y
}

// Dedup returns participants with structural duplicates removed, keeping
// first occurrence order.
func Dedup(ps []Participant) []Participant {
	seen := make(map[Participant]bool, len(ps))
	out := ps[:0:0]
	for _, p := range ps {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
