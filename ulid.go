package ent

import "github.com/oklog/ulid/v2"

func newReportID() ulid.ULID {
	return ulid.MustNew(ulid.Now(), ulid.DefaultEntropy())
}

// UlidRecall remembers every id it generates, for tests that need to look
// reports up after the fact.
type UlidRecall struct {
	Past []ulid.ULID
}

func (u *UlidRecall) First() ulid.ULID {
	return u.Past[0]
}

func (u *UlidRecall) Gen() ulid.ULID {
	ul := newReportID()
	u.Past = append(u.Past, ul)
	return ul
}
