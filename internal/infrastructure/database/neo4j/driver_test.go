package neo4j

import (
	"context"
	"fmt"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/SMARTSexplore/internal/config"
	"github.com/turtacn/SMARTSexplore/internal/domain/smarts"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) VerifyConnectivity(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockDriver) NewSession(ctx context.Context, cfg neo4j.SessionConfig) internalSession {
	return m.Called(ctx, cfg).Get(0).(internalSession)
}

func (m *MockDriver) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockSession runs work against tx.
type MockSession struct {
	mock.Mock
	tx Transaction
}

func (m *MockSession) ExecuteRead(ctx context.Context, work func(Transaction) (any, error)) (any, error) {
	return work(m.tx)
}

func (m *MockSession) ExecuteWrite(ctx context.Context, work func(Transaction) (any, error)) (any, error) {
	return work(m.tx)
}

func (m *MockSession) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// recordingTx returns one record {n: rows} per call and keeps the queries.
type recordingTx struct {
	queries []string
	params  []map[string]any
	err     error
}

func (t *recordingTx) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	if t.err != nil {
		return nil, t.err
	}
	t.queries = append(t.queries, cypher)
	t.params = append(t.params, params)
	n := int64(1)
	if rows, ok := params["rows"].([]map[string]any); ok {
		n = int64(len(rows))
	}
	return &sliceResult{records: []*neo4j.Record{{Keys: []string{"n"}, Values: []any{n}}}}, nil
}

type sliceResult struct {
	records []*neo4j.Record
	pos     int
}

func (r *sliceResult) Next(context.Context) bool {
	if r.pos >= len(r.records) {
		return false
	}
	r.pos++
	return true
}

func (r *sliceResult) Record() *neo4j.Record { return r.records[r.pos-1] }
func (r *sliceResult) Err() error            { return nil }

func newMockedDriver(tx Transaction) (*Driver, *MockDriver, *MockSession) {
	md := new(MockDriver)
	ms := &MockSession{tx: tx}
	md.On("NewSession", mock.Anything, mock.Anything).Return(ms)
	ms.On("Close", mock.Anything).Return(nil)
	return &Driver{driver: md, cfg: config.Neo4jConfig{Database: "graph"}, logger: logging.NewNopLogger()}, md, ms
}

func TestNewDriver_RequiresURI(t *testing.T) {
	_, err := NewDriver(config.Neo4jConfig{}, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeFeatureDisabled))
}

func TestDriver_HealthCheck(t *testing.T) {
	d, md, _ := newMockedDriver(&recordingTx{})
	md.On("VerifyConnectivity", mock.Anything).Return(nil)
	assert.NoError(t, d.HealthCheck(context.Background()))
	md.AssertCalled(t, "NewSession", mock.Anything, neo4j.SessionConfig{DatabaseName: "graph", AccessMode: neo4j.AccessModeRead})
}

func TestDriver_HealthCheckUnreachable(t *testing.T) {
	d, md, _ := newMockedDriver(&recordingTx{})
	md.On("VerifyConnectivity", mock.Anything).Return(fmt.Errorf("refused"))
	assert.True(t, errors.IsCode(d.HealthCheck(context.Background()), errors.ErrCodeDatabaseError))
}

func TestDriver_CloseOnce(t *testing.T) {
	d, md, _ := newMockedDriver(&recordingTx{})
	md.On("Close", mock.Anything).Return(nil).Once()
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	md.AssertNumberOfCalls(t, "Close", 1)
}

func TestGraphExporter_ExportGraph(t *testing.T) {
	tx := &recordingTx{}
	d, _, _ := newMockedDriver(tx)
	exp := NewGraphExporter(d, nil)

	nodes := []*smarts.SMARTS{
		{ID: 1, Name: "a", Library: "lib", Pattern: "[#6]"},
		{ID: 2, Name: "b", Library: "lib", Pattern: "[#6][#7]"},
	}
	edges := []*smarts.DirectedEdge{{ID: 9, FromID: 1, ToID: 2, MCSSim: 0.5, SPSim: 0.4}}

	stats, err := exp.ExportGraph(context.Background(), nodes, edges)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Nodes)
	assert.Equal(t, 1, stats.Edges)

	require.Len(t, tx.queries, 3)
	assert.Contains(t, tx.queries[0], "CREATE CONSTRAINT")
	assert.Contains(t, tx.queries[1], "MERGE (s:SMARTS {id: row.id})")
	assert.Contains(t, tx.queries[2], "MERGE (a)-[r:SUBSET_OF {id: row.id}]->(b)")

	rows := tx.params[2]["rows"].([]map[string]any)
	assert.Equal(t, int64(1), rows[0]["from"])
	assert.Equal(t, 0.4, rows[0]["spsim"])
}

func TestGraphExporter_Batches(t *testing.T) {
	tx := &recordingTx{}
	d, _, _ := newMockedDriver(tx)
	exp := NewGraphExporter(d, nil)

	nodes := make([]*smarts.SMARTS, exportBatchSize+1)
	for i := range nodes {
		nodes[i] = &smarts.SMARTS{ID: int64(i + 1)}
	}
	stats, err := exp.ExportGraph(context.Background(), nodes, nil)
	require.NoError(t, err)
	assert.Equal(t, exportBatchSize+1, stats.Nodes)
	assert.Len(t, tx.queries, 3)
}

func TestGraphExporter_Failure(t *testing.T) {
	d, _, _ := newMockedDriver(&recordingTx{err: fmt.Errorf("read only")})
	_, err := NewGraphExporter(d, nil).ExportGraph(context.Background(), nil, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDatabaseError))
}
