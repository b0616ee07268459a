package ent

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

var reportsBucket = []byte("reports")

var ErrReportNotFound = errors.New("report not found")

// reportEncoding keeps sub-second precision on timestamps.
var reportEncoding = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// History stores reports keyed by id. Since ids are ULIDs, key order is
// also analysis order.
type History struct {
	db *bbolt.DB
}

func OpenHistory(path string) (*History, error) {
	db, err := bbolt.Open(path, 0644, bbolt.DefaultOptions)
	if err != nil {
		return nil, errors.Wrapf(err, "opening history %s", path)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(reportsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &History{db: db}, nil
}

func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) Add(rep *Report) error {
	data, err := reportEncoding.Marshal(rep)
	if err != nil {
		return errors.Wrapf(err, "encoding report")
	}

	return h.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(reportsBucket).Put(rep.ID[:], data)
	})
}

func (h *History) Get(id ulid.ULID) (*Report, error) {
	var rep Report

	err := h.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(reportsBucket).Get(id[:])
		if b == nil {
			return ErrReportNotFound
		}

		return cbor.Unmarshal(b, &rep)
	})
	if err != nil {
		return nil, err
	}

	return &rep, nil
}

// List returns up to limit reports, newest first. A limit <= 0 returns all
// of them.
func (h *History) List(limit int) ([]*Report, error) {
	var out []*Report

	err := h.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(reportsBucket).Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}

			var rep Report
			if err := cbor.Unmarshal(v, &rep); err != nil {
				return errors.Wrapf(err, "decoding report %s", ulid.ULID(k))
			}

			out = append(out, &rep)
		}

		return nil
	})

	return out, err
}
