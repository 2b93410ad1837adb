// Package ports declares the infrastructure contracts the application services
// depend on, plus no-op implementations for deployments that leave the
// optional backends (redis, kafka, prometheus, neo4j) disabled.
package ports

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/turtacn/SMARTSexplore/internal/domain/smarts"
)

// LockPort serializes pipeline runs that write the same tables. Release must
// be called once the critical section ends; it is safe to call with a context
// that has already been cancelled.
type LockPort interface {
	Acquire(ctx context.Context, name string) (release func(context.Context) error, err error)
}

// CachePort abstracts the read-through cache used for graph responses.
type CachePort interface {
	// GetOrSet decodes the cached value of key into dest, or calls loader,
	// stores its result under key for ttl and decodes it into dest.
	GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(context.Context) (interface{}, error)) error
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
}

// EventPort publishes pipeline events after the store transaction committed.
type EventPort interface {
	Publish(ctx context.Context, evt Event) error
}

// MetricsPort records pipeline outcomes.
type MetricsPort interface {
	ObservePipeline(kind, outcome string, d time.Duration)
	AddEdges(mode string, added, duplicates int)
	AddMatches(n int)
	AddImages(kind string, rendered, failed int)
}

// ImagePort stores rendered SVG files under slash separated keys such as
// "smartsview/12.svg".
type ImagePort interface {
	PutFile(ctx context.Context, key, path string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	DeletePrefix(ctx context.Context, prefix string) error
}

// GraphExportPort writes the SMARTS graph to an external graph database.
type GraphExportPort interface {
	ExportGraph(ctx context.Context, nodes []*smarts.SMARTS, edges []*smarts.DirectedEdge) (*ExportStats, error)
}

// ExportStats counts what an export wrote.
type ExportStats struct {
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

// Image key prefixes.
const (
	SMARTSImagePrefix   = "smartsview/"
	SubsetImagePrefix   = "smartssubsets/"
	MoleculeImagePrefix = "molecules/"
)

// SMARTSImageKey is the key of the rendered view of one SMARTS.
func SMARTSImageKey(id int64) string {
	return fmt.Sprintf("%s%d.svg", SMARTSImagePrefix, id)
}

// SubsetImageKey is the key of the rendered view of one directed edge.
func SubsetImageKey(edgeID int64) string {
	return fmt.Sprintf("%s%d.svg", SubsetImagePrefix, edgeID)
}

// MoleculeImageKey is the key of one molecule depiction.
func MoleculeImageKey(setID, moleculeID int64) string {
	return fmt.Sprintf("%s%d/%d.svg", MoleculeImagePrefix, setID, moleculeID)
}

// MoleculeSetImagePrefix is the prefix of every image of one molecule set.
func MoleculeSetImagePrefix(setID int64) string {
	return fmt.Sprintf("%s%d/", MoleculeImagePrefix, setID)
}

type nopLock struct{}

// NewNopLock returns a LockPort that never blocks.
func NewNopLock() LockPort { return nopLock{} }

func (nopLock) Acquire(context.Context, string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

type nopCache struct{}

// NewNopCache returns a CachePort that always calls the loader.
func NewNopCache() CachePort { return nopCache{} }

func (nopCache) GetOrSet(ctx context.Context, _ string, dest interface{}, _ time.Duration, loader func(context.Context) (interface{}, error)) error {
	v, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func (nopCache) DeleteByPrefix(context.Context, string) (int64, error) { return 0, nil }

type nopEvents struct{}

// NewNopEvents returns an EventPort that drops every event.
func NewNopEvents() EventPort { return nopEvents{} }

func (nopEvents) Publish(context.Context, Event) error { return nil }

type nopMetrics struct{}

// NewNopMetrics returns a MetricsPort that records nothing.
func NewNopMetrics() MetricsPort { return nopMetrics{} }

func (nopMetrics) ObservePipeline(string, string, time.Duration) {}
func (nopMetrics) AddEdges(string, int, int)                     {}
func (nopMetrics) AddMatches(int)                                {}
func (nopMetrics) AddImages(string, int, int)                    {}
