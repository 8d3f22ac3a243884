package services

import "sync"

// ShopLocker serializes work per shop phone. Different shops never block
// each other.
type ShopLocker struct {
	mu    sync.Mutex
	locks map[string]*shopLock
}

type shopLock struct {
	mu   sync.Mutex
	refs int
}

func NewShopLocker() *ShopLocker {
	return &ShopLocker{locks: make(map[string]*shopLock)}
}

// Lock blocks until the shop's lock is held and returns its release func.
func (l *ShopLocker) Lock(shopPhone string) func() {
	l.mu.Lock()
	lock, ok := l.locks[shopPhone]
	if !ok {
		lock = &shopLock{}
		l.locks[shopPhone] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, shopPhone)
		}
		l.mu.Unlock()
	}
}
