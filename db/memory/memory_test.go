package memory

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/Bren2010/antani/db"
)

func TestNodeStore(t *testing.T) {
	c := qt.New(t)
	store := NewNodeStore()

	c.Assert(store.Put([]byte("n\x01"), []byte("a")), qt.IsNil)
	c.Assert(store.Put([]byte("n\x02"), []byte("b")), qt.IsNil)
	_, err := store.Get([]byte("n\x01"))
	c.Assert(err, qt.Equals, db.ErrNotFound)

	c.Assert(store.Commit(), qt.IsNil)

	val, err := store.Get([]byte("n\x01"))
	c.Assert(err, qt.IsNil)
	c.Assert(string(val), qt.Equals, "a")

	// Returned values are copies.
	val[0] = 'z'
	val, err = store.Get([]byte("n\x01"))
	c.Assert(err, qt.IsNil)
	c.Assert(string(val), qt.Equals, "a")

	key, val, err := store.Last([]byte("n"))
	c.Assert(err, qt.IsNil)
	c.Assert(string(key), qt.Equals, "n\x02")
	c.Assert(string(val), qt.Equals, "b")

	var keys []string
	err = store.Scan([]byte("n"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	c.Assert(err, qt.IsNil)
	c.Assert(keys, qt.DeepEquals, []string{"n\x01", "n\x02"})

	c.Assert(store.Put([]byte("x"), nil), qt.ErrorMatches, "unable to store nil value")
}
