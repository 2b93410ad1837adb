package redis

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

type CacheTestSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *Client
	cache  *Cache
}

func (s *CacheTestSuite) SetupTest() {
	s.client, s.mr = newTestClient(s.T())
	s.cache = NewCache(s.client, logging.NewNopLogger(), WithNamespace("test"))
}

type graphDoc struct {
	Nodes []int `json:"nodes"`
}

func (s *CacheTestSuite) TestGet_Miss() {
	var dest graphDoc
	err := s.cache.Get(context.Background(), "missing", &dest)
	s.Equal(ErrCacheMiss, err)
}

func (s *CacheTestSuite) TestSetGet() {
	ctx := context.Background()
	s.Require().NoError(s.cache.Set(ctx, "graph:0:1", graphDoc{Nodes: []int{1, 2}}, time.Minute))
	s.True(s.mr.Exists("smartsx:test:graph:0:1"))

	var dest graphDoc
	s.Require().NoError(s.cache.Get(ctx, "graph:0:1", &dest))
	s.Equal([]int{1, 2}, dest.Nodes)

	ttl := s.mr.TTL("smartsx:test:graph:0:1")
	s.True(ttl >= 54*time.Second && ttl <= 66*time.Second, "ttl %s outside jitter range", ttl)
}

func (s *CacheTestSuite) TestGet_CorruptValue() {
	s.Require().NoError(s.mr.Set("smartsx:test:bad", "{not json"))
	var dest graphDoc
	err := s.cache.Get(context.Background(), "bad", &dest)
	s.True(errors.IsCode(err, errors.ErrCodeSerialization))
}

func (s *CacheTestSuite) TestGetOrSet_LoadsOnce() {
	ctx := context.Background()
	calls := 0
	loader := func(context.Context) (interface{}, error) {
		calls++
		return &graphDoc{Nodes: []int{7}}, nil
	}

	for i := 0; i < 3; i++ {
		var dest graphDoc
		s.Require().NoError(s.cache.GetOrSet(ctx, "graph:0:1", &dest, time.Minute, loader))
		s.Equal([]int{7}, dest.Nodes)
	}
	s.Equal(1, calls)
}

func (s *CacheTestSuite) TestGetOrSet_LoaderError() {
	boom := stderrors.New("db down")
	var dest graphDoc
	err := s.cache.GetOrSet(context.Background(), "k", &dest, 0, func(context.Context) (interface{}, error) {
		return nil, boom
	})
	s.ErrorIs(err, boom)
	s.False(s.mr.Exists("smartsx:test:k"))
}

func (s *CacheTestSuite) TestGetOrSet_SharesConcurrentLoads() {
	var calls atomic.Int32
	gate := make(chan struct{})
	loader := func(context.Context) (interface{}, error) {
		calls.Add(1)
		<-gate
		return graphDoc{Nodes: []int{1}}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var dest graphDoc
			s.NoError(s.cache.GetOrSet(context.Background(), "hot", &dest, time.Minute, loader))
			s.Equal([]int{1}, dest.Nodes)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()
	s.Equal(int32(1), calls.Load())
}

func (s *CacheTestSuite) TestGetOrSet_ServerErrorFallsBackToLoader() {
	s.mr.SetError("ERR server unavailable")
	var dest graphDoc
	err := s.cache.GetOrSet(context.Background(), "k", &dest, 0, func(context.Context) (interface{}, error) {
		return graphDoc{Nodes: []int{3}}, nil
	})
	s.NoError(err)
	s.Equal([]int{3}, dest.Nodes)
}

func (s *CacheTestSuite) TestDeleteByPrefix() {
	ctx := context.Background()
	for _, k := range []string{"graph:0:1", "graph:0.5:1", "other"} {
		s.Require().NoError(s.cache.Set(ctx, k, graphDoc{}, time.Minute))
	}
	s.Require().NoError(s.mr.Set("smartsx:lock:graph:x", "v"))

	n, err := s.cache.DeleteByPrefix(ctx, "graph:")
	s.Require().NoError(err)
	s.Equal(int64(2), n)
	s.False(s.mr.Exists("smartsx:test:graph:0:1"))
	s.True(s.mr.Exists("smartsx:test:other"))
	s.True(s.mr.Exists("smartsx:lock:graph:x"))
}

func (s *CacheTestSuite) TestClosedClient() {
	s.Require().NoError(s.client.Close())
	_, err := s.cache.DeleteByPrefix(context.Background(), "graph:")
	s.Equal(ErrClientClosed, err)
}

func TestCacheTestSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}
