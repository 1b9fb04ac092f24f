package storetest

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/victornm/trivia/internal/store"
)

var ErrInjected = stderrors.New("storetest: injected failure")

// Faulty wraps a KV and fails reads or writes on demand.
type Faulty struct {
	store.KV

	mu         sync.Mutex
	failReads  bool
	failWrites bool
}

func NewFaulty(kv store.KV) *Faulty {
	return &Faulty{KV: kv}
}

func (f *Faulty) FailReads(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failReads = fail
}

func (f *Faulty) FailWrites(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrites = fail
}

func (f *Faulty) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	fail := f.failReads
	f.mu.Unlock()

	if fail {
		return nil, ErrInjected
	}

	return f.KV.Get(ctx, key)
}

func (f *Faulty) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	fail := f.failWrites
	f.mu.Unlock()

	if fail {
		return ErrInjected
	}

	return f.KV.Set(ctx, key, value)
}
