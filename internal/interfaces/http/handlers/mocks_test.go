package handlers

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	appmolecule "github.com/turtacn/SMARTSexplore/internal/application/molecule"
	"github.com/turtacn/SMARTSexplore/internal/application/ports"
	appsmarts "github.com/turtacn/SMARTSexplore/internal/application/smarts"
	"github.com/turtacn/SMARTSexplore/pkg/types/graph"
)

type mockSMARTSService struct {
	mock.Mock
}

var _ appsmarts.Service = (*mockSMARTSService)(nil)

func (m *mockSMARTSService) ImportLibrary(ctx context.Context, in *appsmarts.ImportLibraryInput) (*appsmarts.ImportLibraryResult, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*appsmarts.ImportLibraryResult)
	return res, args.Error(1)
}

func (m *mockSMARTSService) CalculateEdges(ctx context.Context, in *appsmarts.CalculateEdgesInput) (*appsmarts.EdgeReport, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*appsmarts.EdgeReport)
	return res, args.Error(1)
}

func (m *mockSMARTSService) Graph(ctx context.Context, minSP, maxSP float64) (*graph.Graph, error) {
	args := m.Called(ctx, minSP, maxSP)
	res, _ := args.Get(0).(*graph.Graph)
	return res, args.Error(1)
}

func (m *mockSMARTSService) RenderSMARTS(ctx context.Context, ids []int64) (*appsmarts.RenderReport, error) {
	args := m.Called(ctx, ids)
	res, _ := args.Get(0).(*appsmarts.RenderReport)
	return res, args.Error(1)
}

func (m *mockSMARTSService) RenderSubsets(ctx context.Context, ids []int64) (*appsmarts.RenderReport, error) {
	args := m.Called(ctx, ids)
	res, _ := args.Get(0).(*appsmarts.RenderReport)
	return res, args.Error(1)
}

func (m *mockSMARTSService) OpenSMARTSImage(ctx context.Context, id int64) (io.ReadCloser, error) {
	args := m.Called(ctx, id)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *mockSMARTSService) OpenSubsetImage(ctx context.Context, id int64) (io.ReadCloser, error) {
	args := m.Called(ctx, id)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *mockSMARTSService) ExportGraph(ctx context.Context) (*ports.ExportStats, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*ports.ExportStats)
	return res, args.Error(1)
}

func (m *mockSMARTSService) ResetEdges(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockMoleculeService struct {
	mock.Mock
}

var _ appmolecule.Service = (*mockMoleculeService)(nil)

func (m *mockMoleculeService) ValidateUpload(filename string, data []byte) error {
	return m.Called(filename, data).Error(0)
}

func (m *mockMoleculeService) Upload(ctx context.Context, in *appmolecule.UploadInput) (*graph.MatchList, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*graph.MatchList)
	return res, args.Error(1)
}

func (m *mockMoleculeService) AddMoleculeSet(ctx context.Context, in *appmolecule.AddSetInput) (*appmolecule.AddSetResult, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*appmolecule.AddSetResult)
	return res, args.Error(1)
}

func (m *mockMoleculeService) Matches(ctx context.Context, setID int64) (*graph.MatchList, error) {
	args := m.Called(ctx, setID)
	res, _ := args.Get(0).(*graph.MatchList)
	return res, args.Error(1)
}

func (m *mockMoleculeService) RenderSet(ctx context.Context, setID int64) (int, error) {
	args := m.Called(ctx, setID)
	return args.Int(0), args.Error(1)
}

func (m *mockMoleculeService) OpenMoleculeImage(ctx context.Context, setID, moleculeID int64) (io.ReadCloser, error) {
	args := m.Called(ctx, setID, moleculeID)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *mockMoleculeService) OpenMoleculeImageByID(ctx context.Context, moleculeID int64) (io.ReadCloser, error) {
	args := m.Called(ctx, moleculeID)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *mockMoleculeService) ResetMolecules(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
