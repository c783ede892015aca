package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// fakeRedis implements the handful of commands the cache uses. Any other
// command panics through the nil embedded interface.
type fakeRedis struct {
	redisv9.Cmdable

	mu      sync.Mutex
	strings map[string]string
	hashes  map[string]map[string]string
	ttls    map[string]time.Duration
	err     error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		strings: map[string]string{},
		hashes:  map[string]map[string]string{},
		ttls:    map[string]time.Duration{},
	}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redisv9.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redisv9.NewStringResult("", f.err)
	}
	v, ok := f.strings[key]
	if !ok {
		return redisv9.NewStringResult("", redisv9.Nil)
	}
	return redisv9.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redisv9.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redisv9.NewStatusResult("", f.err)
	}
	switch v := value.(type) {
	case []byte:
		f.strings[key] = string(v)
	default:
		f.strings[key] = fmt.Sprint(v)
	}
	f.ttls[key] = expiration
	return redisv9.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redisv9.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redisv9.NewIntResult(0, f.err)
	}
	var n int64
	for _, key := range keys {
		if _, ok := f.strings[key]; ok {
			delete(f.strings, key)
			n++
		}
		if _, ok := f.hashes[key]; ok {
			delete(f.hashes, key)
			n++
		}
		delete(f.ttls, key)
	}
	return redisv9.NewIntResult(n, nil)
}

func (f *fakeRedis) Exists(_ context.Context, keys ...string) *redisv9.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redisv9.NewIntResult(0, f.err)
	}
	var n int64
	for _, key := range keys {
		if _, ok := f.strings[key]; ok {
			n++
		}
	}
	return redisv9.NewIntResult(n, nil)
}

func (f *fakeRedis) HExists(_ context.Context, key, field string) *redisv9.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redisv9.NewBoolResult(false, f.err)
	}
	_, ok := f.hashes[key][field]
	return redisv9.NewBoolResult(ok, nil)
}

func (f *fakeRedis) HSet(_ context.Context, key string, values ...interface{}) *redisv9.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redisv9.NewIntResult(0, f.err)
	}
	h, ok := f.hashes[key]
	if !ok {
		h = map[string]string{}
		f.hashes[key] = h
	}
	var added int64
	for i := 0; i+1 < len(values); i += 2 {
		field := fmt.Sprint(values[i])
		if _, exists := h[field]; !exists {
			added++
		}
		h[field] = fmt.Sprint(values[i+1])
	}
	return redisv9.NewIntResult(added, nil)
}

func (f *fakeRedis) Expire(_ context.Context, key string, expiration time.Duration) *redisv9.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redisv9.NewBoolResult(false, f.err)
	}
	f.ttls[key] = expiration
	return redisv9.NewBoolResult(true, nil)
}
