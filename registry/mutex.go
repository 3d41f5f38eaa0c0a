package registry

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// recursiveMutex tolerates re-entrant Lock calls from the same
// goroutine, so a listener invoked under the registry lock may call
// back into the registry without deadlocking.
// Go's sync.Mutex is not reentrant and the runtime exposes no public
// goroutine-ID API, so ownership is tracked by parsing the calling
// goroutine's ID out of its own stack trace header. The owner field is
// only ever written by whoever currently holds in (the real mutex), so
// a goroutine checking "is this my own lock" against owner is safe:
// if it is the owner, it wrote that value itself under in; if it is
// not, the comparison correctly fails regardless of a concurrent write
// by the actual holder.
type recursiveMutex struct {
	in        sync.Mutex
	owner     int64
	recursion int32
}

const noOwner = -1

func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseInt(string(b), 10, 64)
	return id
}

func (m *recursiveMutex) Lock() {
	gid := goroutineID()
	if atomic.LoadInt64(&m.owner) == gid {
		m.recursion++
		return
	}
	m.in.Lock()
	atomic.StoreInt64(&m.owner, gid)
	m.recursion = 1
}

func (m *recursiveMutex) Unlock() {
	gid := goroutineID()
	if atomic.LoadInt64(&m.owner) != gid {
		panic("registry: recursiveMutex Unlock called by non-owner")
	}
	m.recursion--
	if m.recursion != 0 {
		return
	}
	atomic.StoreInt64(&m.owner, noOwner)
	m.in.Unlock()
}
