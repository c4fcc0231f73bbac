// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verso-cms/verso/internal/model"
)

func newMemory(t *testing.T) *MemoryCache {
	t.Helper()
	c := NewMemoryCache(MemoryCacheOptions{DefaultTTL: time.Minute})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMemoryCache_GetSetDelete(t *testing.T) {
	c := newMemory(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	ok, err := c.Has(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := newMemory(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryCache_CopiesValues(t *testing.T) {
	c := newMemory(t)
	ctx := context.Background()

	value := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", value, 0))
	value[0] = 'x'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	got[0] = 'y'
	again, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestMemoryCache_Closed(t *testing.T) {
	c := NewMemoryCache(MemoryCacheOptions{DefaultTTL: time.Minute})
	require.NoError(t, c.Close())

	_, err := c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Set(context.Background(), "k", nil, 0), ErrClosed)

	// Double close is safe.
	assert.NoError(t, c.Close())
}

func TestTypedCache_GetOrSet(t *testing.T) {
	c := newMemory(t)
	ctx := context.Background()
	typed := NewTypedCache[model.Entity](c, time.Minute)

	calls := 0
	load := func() (*model.Entity, error) {
		calls++
		return &model.Entity{Kind: model.KindPage, ID: "p-1"}, nil
	}

	first, err := typed.GetOrSet(ctx, "pub:page:p-1", load)
	require.NoError(t, err)
	second, err := typed.GetOrSet(ctx, "pub:page:p-1", load)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first.ID, second.ID)
}

func TestTypedCache_LoaderErrorNotCached(t *testing.T) {
	c := newMemory(t)
	typed := NewTypedCache[model.Entity](c, time.Minute)

	_, err := typed.GetOrSet(context.Background(), "k", func() (*model.Entity, error) {
		return nil, errors.New("db down")
	})
	assert.Error(t, err)

	_, ok := typed.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestPublishedCache_InvalidateDropsEverything(t *testing.T) {
	mem := newMemory(t)
	pc := NewPublishedCache(mem, Config{DefaultTTL: time.Minute}, nil)
	ctx := context.Background()

	loads := 0
	load := func() (*model.Entity, error) {
		loads++
		return &model.Entity{Kind: model.KindPage, ID: "p-1", IsPublished: true}, nil
	}

	_, err := pc.Entity(ctx, model.KindPage, "p-1", load)
	require.NoError(t, err)
	_, err = pc.Entity(ctx, model.KindPage, "p-1", load)
	require.NoError(t, err)
	assert.Equal(t, 1, loads)

	pc.InvalidatePublished(ctx)
	_, err = pc.Entity(ctx, model.KindPage, "p-1", load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestNewCache_Factory(t *testing.T) {
	c, err := NewCache(Config{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)
	_ = c.Close()

	c, err = NewCache(Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)
	_ = c.Close()

	_, err = NewCache(Config{Backend: "memcached"})
	assert.Error(t, err)

	_, err = NewCache(Config{Backend: BackendRedis})
	assert.Error(t, err) // URL required
}
