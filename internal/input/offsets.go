package input

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/nxadm/tail"
)

// offsetIndex remembers how far each tailed file has been read.
type offsetIndex struct {
	db *badger.DB
}

func (oi *offsetIndex) save(filename string, offset int64) error {
	return oi.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(filename), int64ToBytes(offset))
	})
}

// lastRead returns where tailing should resume. A stored offset past the
// end of the file means the file was rotated and reading starts over.
func (oi *offsetIndex) lastRead(filename string) (*tail.SeekInfo, error) {
	location := &tail.SeekInfo{Whence: io.SeekStart}

	err := oi.db.View(func(txn *badger.Txn) error {
		it, err := txn.Get([]byte(filename))
		if err != nil {
			return err
		}
		return it.Value(func(val []byte) error {
			location.Offset = bytesToInt64(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		err = nil
	}
	if err != nil {
		location.Offset = 0
	}

	f, statErr := os.Stat(filename)
	if statErr != nil || location.Offset > f.Size() {
		location.Offset = 0
	}
	return location, err
}

func (oi *offsetIndex) close() error {
	return oi.db.Close()
}

func int64ToBytes(i int64) []byte {
	bytes := make([]byte, 8)
	binary.BigEndian.PutUint64(bytes, uint64(i))
	return bytes
}

func bytesToInt64(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}
