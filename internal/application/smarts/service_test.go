package smarts

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/SMARTSexplore/internal/application/ports"
	domain "github.com/turtacn/SMARTSexplore/internal/domain/smarts"
	"github.com/turtacn/SMARTSexplore/internal/domain/store"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/process"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/storage"
	"github.com/turtacn/SMARTSexplore/internal/testutil"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) Publish(ctx context.Context, evt ports.Event) error {
	return m.Called(ctx, evt).Error(0)
}

func (m *mockEvents) published(eventType string) []ports.Event {
	var out []ports.Event
	for _, c := range m.Calls {
		if evt := c.Arguments.Get(1).(ports.Event); evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

type mockExporter struct {
	mock.Mock
}

func (m *mockExporter) ExportGraph(ctx context.Context, nodes []*domain.SMARTS, edges []*domain.DirectedEdge) (*ports.ExportStats, error) {
	args := m.Called(ctx, nodes, edges)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.ExportStats), args.Error(1)
}

type recordingMetrics struct {
	mu        sync.Mutex
	pipelines []string
	edges     map[string]int
	rendered  int
	failed    int
}

func (m *recordingMetrics) ObservePipeline(kind, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pipelines = append(m.pipelines, kind+":"+outcome)
}

func (m *recordingMetrics) AddEdges(mode string, added, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.edges == nil {
		m.edges = map[string]int{}
	}
	m.edges[mode] += added
}

func (m *recordingMetrics) AddMatches(int) {}

func (m *recordingMetrics) AddImages(_ string, rendered, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rendered += rendered
	m.failed += failed
}

type failingLock struct{ err error }

func (l failingLock) Acquire(context.Context, string) (func(context.Context) error, error) {
	return nil, l.err
}

type fixture struct {
	svc     Service
	store   *testutil.MemStore
	runner  *testutil.ScriptedRunner
	log     *testutil.MockLogger
	events  *mockEvents
	metrics *recordingMetrics
	images  *storage.FileStore
}

func newFixture(t *testing.T, mutate ...func(*Deps)) *fixture {
	t.Helper()
	images, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		store:   testutil.NewMemStore(),
		runner:  testutil.NewScriptedRunner(),
		log:     testutil.NewMockLogger(),
		events:  new(mockEvents),
		metrics: &recordingMetrics{},
		images:  images,
	}
	f.events.On("Publish", mock.Anything, mock.Anything).Return(nil)

	deps := Deps{
		Store:   f.store,
		Runner:  f.runner,
		Logger:  f.log,
		Events:  f.events,
		Metrics: f.metrics,
		Images:  f.images,
	}
	for _, fn := range mutate {
		fn(&deps)
	}
	cfg := Config{
		ComparePath:         "SMARTScompare",
		ViewerPath:          "SMARTSviewer",
		WorkDir:             t.TempDir(),
		CompareWorkers:      2,
		SimilarityThreshold: 0.1,
		RenderWorkers:       2,
	}
	f.svc = NewService(cfg, deps)
	return f
}

// seed imports one library of the given patterns; ids start at 1 on a fresh store.
func (f *fixture) seed(t *testing.T, patterns ...string) []int64 {
	t.Helper()
	var sb strings.Builder
	for i, p := range patterns {
		fmt.Fprintf(&sb, "%s label%d\n", p, i+1)
	}
	res, err := f.svc.ImportLibrary(context.Background(), &ImportLibraryInput{Name: "lib", Reader: strings.NewReader(sb.String())})
	require.NoError(t, err)
	return res.IDs
}

func compareOutput(mode string, rows ...string) string {
	return "SMARTScompare\nreading patterns\nComparison mode: '" + mode + "'\n" + strings.Join(rows, "\n") + "\n"
}

func row(left, right int64, mcs, sp float64) string {
	return fmt.Sprintf("[#6]`(%d)|(%g,%g)`[#7]`(%d)", left, mcs, sp, right)
}

func edgePairs(t *testing.T, st store.Store, mode domain.Mode) []domain.Pair {
	t.Helper()
	var pairs []domain.Pair
	require.NoError(t, st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		pairs, err = tx.EdgePairs(ctx, mode)
		return err
	}))
	return pairs
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestImportLibrary(t *testing.T) {
	f := newFixture(t)
	input := "# header\n[#6] carbon atom\nnot-a-data-line\n\n[#7]  nitrogen\n"

	res, err := f.svc.ImportLibrary(context.Background(), &ImportLibraryInput{Name: "basic", Reader: strings.NewReader(input)})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, []int{3, 4}, res.Ignored)
	require.Len(t, res.IDs, 2)

	var items []*domain.SMARTS
	require.NoError(t, f.store.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		items, err = tx.ListSMARTS(ctx)
		return err
	}))
	require.Len(t, items, 2)
	assert.Equal(t, "carbon atom", items[0].Name)
	assert.Equal(t, "[#7]", items[1].Pattern)
	assert.Equal(t, "basic", items[1].Library)

	assert.True(t, f.log.HasMessage("warn", "library lines ignored"))
	evts := f.events.published(ports.EventLibraryImported)
	require.Len(t, evts, 1)
	assert.Equal(t, res.IDs, evts[0].Payload.(ports.LibraryImported).SMARTSIDs)
}

func TestImportLibrary_ExistingName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.ImportLibrary(ctx, &ImportLibraryInput{Name: "lib", Reader: strings.NewReader("[#6] c\n[#7] n\n")})
	require.NoError(t, err)

	_, err = f.svc.ImportLibrary(ctx, &ImportLibraryInput{Name: "lib", Reader: strings.NewReader("[#8] o\n")})
	assert.True(t, errors.IsCode(err, errors.ErrCodeLibraryExists))

	res, err := f.svc.ImportLibrary(ctx, &ImportLibraryInput{Name: "lib", Reader: strings.NewReader("[#8] o\n"), Force: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Replaced)
	assert.Equal(t, 1, res.Added)
}

func TestImportLibrary_RequiresName(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ImportLibrary(context.Background(), &ImportLibraryInput{Name: " ", Reader: strings.NewReader("[#6] c\n")})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestLibraryName(t *testing.T) {
	assert.Equal(t, "functional_groups", LibraryName("/data/functional_groups.smarts"))
	assert.Equal(t, "list.txt", LibraryName("list.txt"))
}

func TestCalculateEdges_Similarity(t *testing.T) {
	f := newFixture(t)
	ids := f.seed(t, "[#6]", "[#7]", "[#8]")
	require.Equal(t, []int64{1, 2, 3}, ids)

	var input string
	f.runner.On(ToolCompare, testutil.ToolScript{
		Stdout: compareOutput("Similarity", row(2, 1, 0.5, 0.25), row(1, 3, 0.4, 0.2), row(1, 2, 0.5, 0.25)),
		Run: func(cmd process.Command) error {
			b, err := os.ReadFile(cmd.Args[0])
			input = string(b)
			return err
		},
	})

	report, err := f.svc.CalculateEdges(context.Background(), &CalculateEdgesInput{Mode: "Similarity"})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 2, report.Added)
	assert.Equal(t, 1, report.Duplicates)
	assert.False(t, report.Skipped)
	assert.Contains(t, input, "[#6]\t1")
	assert.Contains(t, input, "[#8]\t3")

	args := f.runner.Calls()[0].Args
	assert.Equal(t, []string{"-M", "-1", "-t", "0.1", "-p", "2", "-d", "|", "-D", "`", "-m", "4"}, args[1:])

	assert.ElementsMatch(t, []domain.Pair{{A: 1, B: 2}, {A: 1, B: 3}}, edgePairs(t, f.store, domain.ModeSimilarity))
	assert.Len(t, f.events.published(ports.EventEdgesCalculated), 1)
	assert.Equal(t, 2, f.metrics.edges["Similarity"])

	// A second identical run adds nothing.
	report, err = f.svc.CalculateEdges(context.Background(), &CalculateEdgesInput{Mode: "Similarity"})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Added)
	assert.Equal(t, 3, report.Duplicates)
	assert.Len(t, f.events.published(ports.EventEdgesCalculated), 1)
}

func TestCalculateEdges_SubsetOfFirst(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "[#6]", "[#6]-[#7]")
	f.runner.On(ToolCompare, testutil.ToolScript{
		Stdout: compareOutput("SubsetOfFirst", row(1, 2, 0.6, 0.8), row(2, 1, 0.6, 0.3)),
	})

	report, err := f.svc.CalculateEdges(context.Background(), &CalculateEdgesInput{Mode: "SubsetOfFirst"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Added)
	require.Len(t, report.DirectedEdgeIDs, 2)
	assert.NotContains(t, f.runner.Calls()[0].Args, "-t")
	assert.Equal(t, "2", argAfter(f.runner.Calls()[0].Args, "-m"))

	g, err := f.svc.Graph(context.Background(), 0.5, 1)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 2)
	require.Len(t, g.Edges, 1)
	assert.Equal(t, int64(2), g.Edges[0].Source)
	assert.Equal(t, int64(1), g.Edges[0].Target)
	assert.Equal(t, 0.8, g.Edges[0].SPSim)

	evts := f.events.published(ports.EventEdgesCalculated)
	require.Len(t, evts, 1)
	assert.Equal(t, report.DirectedEdgeIDs, evts[0].Payload.(ports.EdgesCalculated).DirectedEdgeIDs)
}

func TestCalculateEdges_RejectsModesBeforeWork(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "[#6]")

	_, err := f.svc.CalculateEdges(context.Background(), &CalculateEdgesInput{Mode: "Identical"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeModeNotImplemented))
	_, err = f.svc.CalculateEdges(context.Background(), &CalculateEdgesInput{Mode: "SubsetOfSecond"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeModeNotImplemented))
	_, err = f.svc.CalculateEdges(context.Background(), &CalculateEdgesInput{Mode: "similarity"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnknownMode))

	assert.Empty(t, f.runner.Calls())
}

func TestCalculateEdges_NoSMARTS(t *testing.T) {
	f := newFixture(t)

	report, err := f.svc.CalculateEdges(context.Background(), &CalculateEdgesInput{Mode: "Similarity"})
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Empty(t, f.runner.Calls())
	assert.True(t, f.log.HasMessage("warn", "no SMARTS stored, skipping edge calculation"))
	assert.Contains(t, f.metrics.pipelines, "edges:skipped")
}

func TestCalculateEdges_ToolFailure(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "[#6]", "[#7]")
	f.runner.On(ToolCompare, testutil.ToolScript{ExitCode: 3, Stderr: "segfault"})

	report, err := f.svc.CalculateEdges(context.Background(), &CalculateEdgesInput{Mode: "Similarity"})
	require.NoError(t, err)
	assert.True(t, report.ToolFailed)
	assert.Empty(t, edgePairs(t, f.store, domain.ModeSimilarity))

	_, err = f.svc.CalculateEdges(context.Background(), &CalculateEdgesInput{Mode: "Similarity", Strict: true})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeExternalTool))
	te, ok := process.AsToolError(err)
	require.True(t, ok)
	assert.Equal(t, 3, te.ExitCode)
}

func TestCalculateEdges_ModeMismatch(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "[#6]", "[#7]")
	f.runner.On(ToolCompare, testutil.ToolScript{Stdout: compareOutput("SubsetOfFirst", row(1, 2, 0.5, 0.5))})

	_, err := f.svc.CalculateEdges(context.Background(), &CalculateEdgesInput{Mode: "Similarity"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeModeMismatch))
	assert.Empty(t, edgePairs(t, f.store, domain.ModeSimilarity))
	assert.Empty(t, edgePairs(t, f.store, domain.ModeSubsetOfFirst))
}

func TestCalculateEdges_GrammarErrorRollsBack(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "[#6]", "[#7]", "[#8]")
	f.runner.On(ToolCompare, testutil.ToolScript{
		Stdout: compareOutput("Similarity", row(1, 2, 0.5, 0.5), "garbage line"),
	})

	_, err := f.svc.CalculateEdges(context.Background(), &CalculateEdgesInput{Mode: "Similarity"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeParseGrammar))
	assert.Empty(t, edgePairs(t, f.store, domain.ModeSimilarity))
	assert.Empty(t, f.events.published(ports.EventEdgesCalculated))
}

func TestCalculateEdges_UnknownIDRollsBack(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "[#6]", "[#7]")
	f.runner.On(ToolCompare, testutil.ToolScript{
		Stdout: compareOutput("Similarity", row(1, 2, 0.5, 0.5), row(1, 99, 0.5, 0.5)),
	})

	_, err := f.svc.CalculateEdges(context.Background(), &CalculateEdgesInput{Mode: "Similarity"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeEdgeInvariant))
	assert.Empty(t, edgePairs(t, f.store, domain.ModeSimilarity))
}

func TestCalculateEdges_InsertFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "[#6]", "[#7]")
	f.runner.On(ToolCompare, testutil.ToolScript{Stdout: compareOutput("Similarity", row(1, 2, 0.5, 0.5))})
	f.store.FailOn("InsertUndirectedEdges", stderrors.New("disk full"))

	_, err := f.svc.CalculateEdges(context.Background(), &CalculateEdgesInput{Mode: "Similarity"})
	require.Error(t, err)
	assert.True(t, f.log.HasMessage("error", "edge calculation rolled back"))
	assert.Contains(t, f.metrics.pipelines, "edges:failed")
}

func TestCalculateEdges_LockNotAcquired(t *testing.T) {
	lockErr := errors.New(errors.ErrCodeLockNotAcquired, "edge calculation already running")
	f := newFixture(t, func(d *Deps) { d.Lock = failingLock{err: lockErr} })
	f.seed(t, "[#6]", "[#7]")

	_, err := f.svc.CalculateEdges(context.Background(), &CalculateEdgesInput{Mode: "Similarity"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeLockNotAcquired))
	assert.Empty(t, f.runner.Calls())
}

func TestGraph_Empty(t *testing.T) {
	f := newFixture(t)
	g, err := f.svc.Graph(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.NotNil(t, g.Nodes)
	assert.NotNil(t, g.Edges)
	assert.Empty(t, g.Nodes)
}

func TestGraph_RejectsNaN(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Graph(context.Background(), 0, nan())
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
}

func nan() float64 {
	zero := 0.0
	return zero / zero
}

func TestGraphCacheKey(t *testing.T) {
	assert.Equal(t, "graph:0:1", graphCacheKey(0, 1))
	assert.Equal(t, "graph:0.25:0.5", graphCacheKey(0.25, 0.5))
}

func writeSVG(cmd process.Command) error {
	out := argAfter(cmd.Args, "-o")
	if strings.Contains(strings.Join(cmd.Args, " "), "-s [#7]") && !strings.Contains(strings.Join(cmd.Args, " "), "-m3") {
		return stderrors.New("viewer cannot draw [#7]")
	}
	return os.WriteFile(out, []byte("<svg>"+argAfter(cmd.Args, "-s")+"</svg>"), 0o644)
}

func TestRenderSMARTS(t *testing.T) {
	f := newFixture(t)
	ids := f.seed(t, "[#6]", "[#7]", "[#8]")
	f.runner.On(ToolViewer, testutil.ToolScript{Run: writeSVG})

	report, err := f.svc.RenderSMARTS(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Rendered)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, f.metrics.rendered)

	rc, err := f.svc.OpenSMARTSImage(context.Background(), ids[2])
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "<svg>[#8]</svg>", string(b))

	_, err = f.svc.OpenSMARTSImage(context.Background(), ids[1])
	assert.True(t, errors.IsNotFound(err))

	for _, c := range f.runner.Calls() {
		assert.Equal(t, []string{"-p", "0", "0", "0", "0", "0", "0", "0", "1", "-d", "300", "300"}, c.Args[:12])
	}
}

func TestRenderSMARTS_Selected(t *testing.T) {
	f := newFixture(t)
	ids := f.seed(t, "[#6]", "[#8]")
	f.runner.On(ToolViewer, testutil.ToolScript{Run: writeSVG})

	report, err := f.svc.RenderSMARTS(context.Background(), ids[1:])
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rendered)
	assert.Equal(t, 1, f.runner.CallCount(ToolViewer))
}

func TestRenderSubsets(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "[#6]", "[#7]")
	f.runner.On(ToolCompare, testutil.ToolScript{Stdout: compareOutput("SubsetOfFirst", row(1, 2, 0.5, 0.5))})
	f.runner.On(ToolViewer, testutil.ToolScript{Run: writeSVG})

	edges, err := f.svc.CalculateEdges(context.Background(), &CalculateEdgesInput{Mode: "SubsetOfFirst"})
	require.NoError(t, err)
	require.Len(t, edges.DirectedEdgeIDs, 1)

	report, err := f.svc.RenderSubsets(context.Background(), edges.DirectedEdgeIDs)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rendered)

	var viewer process.Command
	for _, c := range f.runner.Calls() {
		if c.Tool == ToolViewer {
			viewer = c
		}
	}
	n := len(viewer.Args)
	assert.Equal(t, []string{"-s", "[#7]", "[#6]", "-m3"}, viewer.Args[n-4:])

	rc, err := f.svc.OpenSubsetImage(context.Background(), edges.DirectedEdgeIDs[0])
	require.NoError(t, err)
	rc.Close()
}

func TestRender_WithoutImageStore(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Images = nil })
	_, err := f.svc.RenderSMARTS(context.Background(), nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeFeatureDisabled))
	_, err = f.svc.OpenSubsetImage(context.Background(), 1)
	assert.True(t, errors.IsCode(err, errors.ErrCodeFeatureDisabled))
}

func TestExportGraph(t *testing.T) {
	exp := new(mockExporter)
	f := newFixture(t, func(d *Deps) { d.Exporter = exp })
	f.seed(t, "[#6]", "[#7]")
	f.runner.On(ToolCompare, testutil.ToolScript{Stdout: compareOutput("SubsetOfFirst", row(1, 2, 0.5, 0.05))})
	_, err := f.svc.CalculateEdges(context.Background(), &CalculateEdgesInput{Mode: "SubsetOfFirst"})
	require.NoError(t, err)

	exp.On("ExportGraph", mock.Anything,
		mock.MatchedBy(func(n []*domain.SMARTS) bool { return len(n) == 2 }),
		mock.MatchedBy(func(e []*domain.DirectedEdge) bool { return len(e) == 1 })).
		Return(&ports.ExportStats{Nodes: 2, Edges: 1}, nil)

	stats, err := f.svc.ExportGraph(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Nodes)
	exp.AssertExpectations(t)
}

func TestExportGraph_Disabled(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ExportGraph(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeFeatureDisabled))
}

func TestResetEdges(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "[#6]", "[#7]")
	f.runner.On(ToolCompare, testutil.ToolScript{Stdout: compareOutput("Similarity", row(1, 2, 0.5, 0.5))})
	_, err := f.svc.CalculateEdges(context.Background(), &CalculateEdgesInput{Mode: "Similarity"})
	require.NoError(t, err)

	require.NoError(t, f.svc.ResetEdges(context.Background()))
	assert.Empty(t, edgePairs(t, f.store, domain.ModeSimilarity))
}
