package kvstore

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/erigontech/mdbx-go/mdbx"
)

const tableName = "chronik"

// MDBX is the production KV implementation: a single libmdbx environment
// with one named table, opened with single-writer discipline, giving
// ordered ranged iteration and atomic single-key writes.
type MDBX struct {
	env *mdbx.Env
	dbi mdbx.DBI

	// writeMu serializes Update transactions; mdbx already serializes
	// writers internally, but this keeps Put/Delete/Clear from
	// interleaving across goroutines in a way that would surprise callers
	// expecting atomic single-key writes.
	writeMu sync.Mutex
}

// Open creates or opens an MDBX-backed store rooted at dir.
func Open(dir string) (*MDBX, error) {
	env, err := mdbx.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("kvstore: new env: %w", err)
	}
	if err := env.SetOption(mdbx.OptMaxDB, 1); err != nil {
		return nil, fmt.Errorf("kvstore: set maxdb: %w", err)
	}
	if err := env.SetGeometry(-1, -1, 4*1024*1024*1024, -1, -1, 4096); err != nil {
		return nil, fmt.Errorf("kvstore: set geometry: %w", err)
	}
	if err := env.Open(dir, mdbx.Coalesce|mdbx.LifoReclaim, 0664); err != nil {
		return nil, fmt.Errorf("kvstore: open %s: %w", dir, err)
	}

	m := &MDBX{env: env}
	if err := env.Update(func(txn *mdbx.Txn) error {
		dbi, err := txn.OpenDBISimple(tableName, mdbx.Create)
		if err != nil {
			return err
		}
		m.dbi = dbi
		return nil
	}); err != nil {
		env.Close()
		return nil, fmt.Errorf("kvstore: open table %s: %w", tableName, err)
	}
	return m, nil
}

func (m *MDBX) Get(k []byte) ([]byte, error) {
	var out []byte
	err := m.env.View(func(txn *mdbx.Txn) error {
		v, err := txn.Get(m.dbi, k)
		if mdbx.IsNotFound(err) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MDBX) Put(k, v []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.env.Update(func(txn *mdbx.Txn) error {
		return txn.Put(m.dbi, k, v, 0)
	})
}

func (m *MDBX) Delete(k []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.env.Update(func(txn *mdbx.Txn) error {
		err := txn.Del(m.dbi, k, nil)
		if mdbx.IsNotFound(err) {
			return nil
		}
		return err
	})
}

func (m *MDBX) Clear() error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.env.Update(func(txn *mdbx.Txn) error {
		return txn.Drop(m.dbi, false)
	})
}

func (m *MDBX) Close() error {
	m.env.Close()
	return nil
}

func (m *MDBX) Iterator(prefix []byte) (Iterator, error) {
	txn, err := m.env.BeginTxn(nil, mdbx.Readonly)
	if err != nil {
		return nil, err
	}
	cur, err := txn.OpenCursor(m.dbi)
	if err != nil {
		txn.Abort()
		return nil, err
	}
	return &mdbxIterator{txn: txn, cur: cur, prefix: prefix, first: true}, nil
}

type mdbxIterator struct {
	txn    *mdbx.Txn
	cur    *mdbx.Cursor
	prefix []byte
	first  bool
	key    []byte
	val    []byte
	err    error
	done   bool
}

func (it *mdbxIterator) Next() bool {
	if it.done {
		return false
	}
	var k, v []byte
	var err error
	if it.first && len(it.prefix) > 0 {
		it.first = false
		k, v, err = it.cur.Get(it.prefix, nil, mdbx.SetRange)
	} else {
		it.first = false
		k, v, err = it.cur.Get(nil, nil, mdbx.Next)
	}
	if mdbx.IsNotFound(err) {
		it.done = true
		return false
	}
	if err != nil {
		it.err = err
		it.done = true
		return false
	}
	if len(it.prefix) > 0 && !bytes.HasPrefix(k, it.prefix) {
		it.done = true
		return false
	}
	it.key, it.val = k, v
	return true
}

func (it *mdbxIterator) Key() []byte   { return it.key }
func (it *mdbxIterator) Value() []byte { return it.val }
func (it *mdbxIterator) Err() error    { return it.err }
func (it *mdbxIterator) Close() error {
	it.cur.Close()
	it.txn.Abort()
	return nil
}
