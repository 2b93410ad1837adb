package molecule

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/SMARTSexplore/internal/application/ports"
	smartsdomain "github.com/turtacn/SMARTSexplore/internal/domain/smarts"
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

type countingMetrics struct {
	pipelines []string
	matches   int
	images    int
	missing   int
}

func (m *countingMetrics) ObservePipeline(kind, outcome string, _ time.Duration) {
	m.pipelines = append(m.pipelines, kind+":"+outcome)
}
func (m *countingMetrics) AddEdges(string, int, int) {}
func (m *countingMetrics) AddMatches(n int)          { m.matches += n }
func (m *countingMetrics) AddImages(_ string, rendered, failed int) {
	m.images += rendered
	m.missing += failed
}

type fixture struct {
	svc     Service
	store   *testutil.MemStore
	runner  *testutil.ScriptedRunner
	log     *testutil.MockLogger
	events  *mockEvents
	metrics *countingMetrics
	images  *storage.FileStore
}

func newFixture(t *testing.T, mutate ...func(*Config, *Deps)) *fixture {
	t.Helper()
	images, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		store:   testutil.NewMemStore(),
		runner:  testutil.NewScriptedRunner(),
		log:     testutil.NewMockLogger(),
		events:  new(mockEvents),
		metrics: &countingMetrics{},
		images:  images,
	}
	f.events.On("Publish", mock.Anything, mock.Anything).Return(nil)

	cfg := Config{
		MatchToolPath:     "matchtool",
		Mol2SVGPath:       "mol2svg",
		WorkDir:           t.TempDir(),
		AllowedExtensions: []string{"smi", "smiles"},
		MaxMolecules:      3,
	}
	deps := Deps{
		Store:   f.store,
		Runner:  f.runner,
		Logger:  f.log,
		Events:  f.events,
		Metrics: f.metrics,
		Images:  f.images,
	}
	for _, fn := range mutate {
		fn(&cfg, &deps)
	}
	f.svc = NewService(cfg, deps)
	return f
}

// seedSMARTS stores patterns directly; on a fresh store their ids are 1..n.
func (f *fixture) seedSMARTS(t *testing.T, patterns ...string) {
	t.Helper()
	items := make([]*smartsdomain.SMARTS, len(patterns))
	for i, p := range patterns {
		items[i] = &smartsdomain.SMARTS{Name: p, Pattern: p, Library: "lib"}
	}
	require.NoError(t, f.store.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreateSMARTS(ctx, items)
	}))
}

type counts struct{ sets, molecules, matches int64 }

func (f *fixture) counts(t *testing.T) counts {
	t.Helper()
	var c counts
	require.NoError(t, f.store.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		if c.sets, err = tx.CountSets(ctx); err != nil {
			return err
		}
		if c.molecules, err = tx.CountMolecules(ctx); err != nil {
			return err
		}
		c.matches, err = tx.CountMatches(ctx)
		return err
	}))
	return c
}

// writeImages creates the files mol2svg would write for the given lines.
func writeImages(total int, lines ...int) func(process.Command) error {
	return func(cmd process.Command) error {
		var out string
		for i, a := range cmd.Args {
			if a == "-o" && i+1 < len(cmd.Args) {
				out = cmd.Args[i+1]
			}
		}
		dir := filepath.Dir(out)
		for _, l := range lines {
			if err := os.WriteFile(filepath.Join(dir, mol2svgName(l, total)), []byte("<svg/>"), 0o644); err != nil {
				return err
			}
		}
		return nil
	}
}

func upload(f *fixture, data string) error {
	_, err := f.svc.Upload(context.Background(), &UploadInput{Filename: "mols.smi", Data: []byte(data)})
	return err
}

func TestValidateUpload(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		filename string
		data     string
		wantMsg  string
	}{
		{"valid", "mols.smi", "CCO\nCCN\n", ""},
		{"upper case extension", "MOLS.SMILES", "CCO\n", ""},
		{"comments not counted", "mols.smi", "# a\n# b\nCCO\nCCN\nCCC\n", ""},
		{"last line without newline", "mols.smi", "CCO\nCCN\nCCC\nCCCC", "You seem to have uploaded 4 molecules. Please upload a file with 3 molecules or less!"},
		{"wrong extension", "mols.txt", "CCO\n", "Please upload a .smi or .smiles file!"},
		{"no extension", "smi", "CCO\n", "Please upload a .smi or .smiles file!"},
		{"not utf8", "mols.smi", "CC\xff\xfeO\n", "Could not decode file as UTF8 text! Are you sure this is a molecule file?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.ValidateUpload(tt.filename, []byte(tt.data))
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeUploadValidation))
			var ae *errors.AppError
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, tt.wantMsg, ae.Message)
		})
	}
}

func TestValidateUpload_SingleExtension(t *testing.T) {
	f := newFixture(t, func(c *Config, _ *Deps) { c.AllowedExtensions = []string{"smi"} })
	err := f.svc.ValidateUpload("x.sdf", []byte("CCO"))
	var ae *errors.AppError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "Please upload a .smi file!", ae.Message)
}

func TestMol2SVGName(t *testing.T) {
	assert.Equal(t, "img_1.svg", mol2svgName(1, 9))
	assert.Equal(t, "img_01.svg", mol2svgName(1, 10))
	assert.Equal(t, "img_10.svg", mol2svgName(10, 10))
	assert.Equal(t, "img_01.svg", mol2svgName(1, 99))
	assert.Equal(t, "img_001.svg", mol2svgName(1, 100))
}

func TestUpload_MatchesAndRenders(t *testing.T) {
	f := newFixture(t)
	f.seedSMARTS(t, "[#6]", "[#8]")
	// set id 3, molecules 4 and 5; the repeated pair collapses.
	f.runner.On(ToolMatch, testutil.ToolScript{Stdout: "1\t4\n2\t4\n1\t5\n1\t4\n"})
	f.runner.On(ToolMol2SVG, testutil.ToolScript{Run: writeImages(2, 1, 2)})

	list, err := f.svc.Upload(context.Background(), &UploadInput{Filename: "mols.smi", Data: []byte("CCO ethanol\nCC\n")})
	require.NoError(t, err)
	assert.Equal(t, int64(3), list.MoleculeSetID)
	require.Len(t, list.Matches, 3)
	assert.Equal(t, "ethanol", list.Matches[0].MoleculeName)

	calls := f.runner.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, ToolMatch, calls[0].Tool)
	assert.Equal(t, []string{"-i", "2", "-m"}, calls[0].Args[:3])
	assert.Equal(t, "-s", calls[0].Args[4])
	assert.True(t, calls[0].Strict)
	assert.Equal(t, ToolMol2SVG, calls[1].Tool)
	assert.Equal(t, []string{"-a", "-P"}, calls[1].Args[4:])

	for _, mol := range []int64{4, 5} {
		rc, err := f.svc.OpenMoleculeImage(context.Background(), 3, mol)
		require.NoError(t, err)
		body, _ := io.ReadAll(rc)
		rc.Close()
		assert.Equal(t, "<svg/>", string(body))
	}
	assert.Equal(t, 3, f.metrics.matches)
	assert.Equal(t, 2, f.metrics.images)
	f.events.AssertCalled(t, "Publish", mock.Anything, mock.MatchedBy(func(evt ports.Event) bool {
		p, ok := evt.Payload.(ports.MoleculesMatched)
		return evt.Type == ports.EventMoleculesMatched && ok && p.Matches == 3 && p.Molecules == 2
	}))
}

func TestUpload_NoSMARTSStored(t *testing.T) {
	f := newFixture(t)
	f.runner.On(ToolMol2SVG, testutil.ToolScript{Run: writeImages(1, 1)})

	list, err := f.svc.Upload(context.Background(), &UploadInput{Filename: "mols.smi", Data: []byte("CCO\n")})
	require.NoError(t, err)
	assert.Empty(t, list.Matches)
	assert.Equal(t, 0, f.runner.CallCount(ToolMatch))
	assert.True(t, f.log.HasMessage("warn", "no SMARTS stored, molecule set kept without matches"))
	assert.Equal(t, counts{sets: 1, molecules: 1}, f.counts(t))
}

func TestUpload_RejectedBeforeAnythingIsStored(t *testing.T) {
	f := newFixture(t)
	err := upload(f, "C\nCC\nCCC\nCCCC\n")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUploadValidation))
	assert.Empty(t, f.runner.Calls())
	assert.Equal(t, counts{}, f.counts(t))
}

func TestUpload_FailuresRemoveTheSet(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
	}{
		{"match tool fails", func(f *fixture) {
			f.runner.On(ToolMatch, testutil.ToolScript{ExitCode: 1, Stderr: "segfault"})
		}},
		{"match output unparsable", func(f *fixture) {
			f.runner.On(ToolMatch, testutil.ToolScript{Stdout: "garbage\n"})
		}},
		{"match names unknown molecule", func(f *fixture) {
			f.runner.On(ToolMatch, testutil.ToolScript{Stdout: "1\t99\n"})
		}},
		{"match insert fails", func(f *fixture) {
			f.runner.On(ToolMatch, testutil.ToolScript{Stdout: "1\t4\n"})
			f.store.FailOn("InsertMatches", stderrors.New("disk full"))
		}},
		{"mol2svg fails", func(f *fixture) {
			f.runner.On(ToolMatch, testutil.ToolScript{Stdout: "1\t4\n"})
			f.runner.On(ToolMol2SVG, testutil.ToolScript{ExitCode: 2})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedSMARTS(t, "[#6]", "[#8]")
			f.runner.On(ToolMol2SVG, testutil.ToolScript{Run: writeImages(2, 1, 2)})
			tt.setup(f)

			err := upload(f, "CCO\nCC\n")
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodePipelineFailure))
			assert.Equal(t, counts{}, f.counts(t))
			assert.True(t, f.log.HasMessage("warn", "removing molecule set after failure"))
			assert.Contains(t, f.metrics.pipelines, kindMatches+":"+outcomeCompensated)

			_, err = f.svc.Matches(context.Background(), 3)
			assert.True(t, errors.IsCode(err, errors.ErrCodeMoleculeSetNotFound))
		})
	}
}

func TestUpload_RenderFailureRemovesStoredImages(t *testing.T) {
	f := newFixture(t)
	f.runner.On(ToolMol2SVG, testutil.ToolScript{Run: writeImages(2, 1, 2)})
	require.NoError(t, upload(f, "CCO\nCC\n"))

	// A later failing upload must not touch the first set's images.
	f.runner.On(ToolMol2SVG, testutil.ToolScript{ExitCode: 1})
	require.Error(t, upload(f, "CCC\n"))

	rc, err := f.svc.OpenMoleculeImage(context.Background(), 1, 2)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, counts{sets: 1, molecules: 2}, f.counts(t))
}

func TestUpload_WithoutImageStore(t *testing.T) {
	f := newFixture(t, func(_ *Config, d *Deps) { d.Images = nil })
	f.seedSMARTS(t, "[#6]")
	f.runner.On(ToolMatch, testutil.ToolScript{Stdout: "1\t3\n"})

	list, err := f.svc.Upload(context.Background(), &UploadInput{Filename: "mols.smi", Data: []byte("CCO\n")})
	require.NoError(t, err)
	assert.Len(t, list.Matches, 1)
	assert.Equal(t, 0, f.runner.CallCount(ToolMol2SVG))

	_, err = f.svc.OpenMoleculeImage(context.Background(), 2, 3)
	assert.True(t, errors.IsCode(err, errors.ErrCodeFeatureDisabled))
}

func TestAddMoleculeSet(t *testing.T) {
	f := newFixture(t)
	f.seedSMARTS(t, "[#6]")
	f.runner.On(ToolMatch, testutil.ToolScript{Stdout: "1\t3\n1\t4\n"})

	res, err := f.svc.AddMoleculeSet(context.Background(), &AddSetInput{
		Name:   "drugs",
		Reader: strings.NewReader("CCO ethanol\nCC ethane\nunlabelled\n"),
		Match:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.MoleculeSetID)
	assert.Equal(t, 2, res.Molecules)
	assert.Equal(t, 2, res.Matches)
	assert.Equal(t, []int{3}, res.Ignored)
	assert.True(t, f.log.HasMessage("warn", "molecule lines ignored"))
}

func TestAddMoleculeSet_WithoutMatching(t *testing.T) {
	f := newFixture(t)
	f.seedSMARTS(t, "[#6]")

	res, err := f.svc.AddMoleculeSet(context.Background(), &AddSetInput{Name: "drugs", Reader: strings.NewReader("CCO ethanol\n")})
	require.NoError(t, err)
	assert.Zero(t, res.Matches)
	assert.Equal(t, 0, f.runner.CallCount(ToolMatch))
}

func TestRenderSet_MissingOutputIsSkipped(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.AddMoleculeSet(context.Background(), &AddSetInput{Name: "s", Reader: strings.NewReader("CCO a\nCC b\n")})
	require.NoError(t, err)
	f.runner.On(ToolMol2SVG, testutil.ToolScript{Run: writeImages(2, 2)})

	n, err := f.svc.RenderSet(context.Background(), res.MoleculeSetID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.metrics.missing)
	assert.True(t, f.log.HasMessage("warn", "mol2svg output missing"))

	_, err = f.svc.OpenMoleculeImage(context.Background(), res.MoleculeSetID, 2)
	assert.True(t, errors.IsNotFound(err))
	rc, err := f.svc.OpenMoleculeImageByID(context.Background(), 3)
	require.NoError(t, err)
	rc.Close()
}

func TestRenderSet_UnknownSet(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RenderSet(context.Background(), 42)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMoleculeSetNotFound))
}

func TestMatches_UnknownSet(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Matches(context.Background(), 7)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMoleculeSetNotFound))
}

func TestOpenMoleculeImageByID_UnknownMolecule(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.OpenMoleculeImageByID(context.Background(), 9)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMoleculeNotFound))
}

func TestResetMolecules(t *testing.T) {
	f := newFixture(t)
	f.runner.On(ToolMol2SVG, testutil.ToolScript{Run: writeImages(1, 1)})
	require.NoError(t, upload(f, "CCO\n"))
	require.NoError(t, f.svc.ResetMolecules(context.Background()))

	assert.Equal(t, counts{}, f.counts(t))
	_, err := f.svc.OpenMoleculeImage(context.Background(), 1, 2)
	assert.True(t, errors.IsNotFound(err))
}
