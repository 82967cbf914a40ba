package secure

import (
	"sync"

	"github.com/awnumar/memguard"
)

// Buffer provides memory-safe storage for credential material. It wraps
// memguard.Enclave to keep secrets encrypted at rest in memory and protected
// from swapping via mlock.
//
// memguard.Enclave has no direct destroy operation; Destroy here marks the
// buffer unusable and drops the enclave reference. The encrypted payload is
// safe to leave for the garbage collector. For full cleanup at process exit,
// call memguard.Purge.
type Buffer struct {
	enclave   *memguard.Enclave
	mu        sync.RWMutex
	destroyed bool
}

// NewBuffer creates a protected buffer from secret bytes. The input is
// copied into a protected region immediately; the caller should zero its
// own copy.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{enclave: memguard.NewEnclave(data)}
}

// Open decrypts and returns the protected data in a locked buffer.
// The caller MUST call Destroy on the returned LockedBuffer when done.
//
//	locked, err := buf.Open()
//	if err != nil {
//	    return err
//	}
//	defer locked.Destroy()
//	secret := locked.Bytes()
func (b *Buffer) Open() (*memguard.LockedBuffer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.destroyed {
		return memguard.NewBufferFromBytes([]byte{}), nil
	}
	return b.enclave.Open()
}

// Bytes decrypts the buffer and returns a copy of the plaintext. Callers
// that hand the bytes to a plugin SDK use this; the copy should be
// considered sensitive and short-lived.
func (b *Buffer) Bytes() ([]byte, error) {
	locked, err := b.Open()
	if err != nil {
		return nil, err
	}
	defer locked.Destroy()

	out := make([]byte, len(locked.Bytes()))
	copy(out, locked.Bytes())
	return out, nil
}

// Destroy marks this Buffer as destroyed and prevents further use.
// Idempotent; after Destroy, Open returns an empty buffer.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return
	}
	b.enclave = nil
	b.destroyed = true
}
