package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/SMARTSexplore/internal/application/ports"
	appsmarts "github.com/turtacn/SMARTSexplore/internal/application/smarts"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

// NewSMARTSCmd groups the SMARTS library commands.
func NewSMARTSCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smarts",
		Short: "Import SMARTS libraries, calculate edges and render patterns",
	}
	cmd.AddCommand(
		newAddLibraryCmd(),
		newAddLibrariesCmd(),
		newCalculateEdgesCmd(),
		newDrawAllCmd(),
		newDrawSubsetsCmd(),
		newExportGraphCmd(),
	)
	return cmd
}

// libraryImports is the result of add-library and add-libraries.
type libraryImports []*appsmarts.ImportLibraryResult

func (l libraryImports) TableHeaders() []string {
	return []string{"Library", "Added", "Replaced", "Ignored lines"}
}

func (l libraryImports) TableRows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		rows = append(rows, []string{
			r.Library,
			strconv.Itoa(r.Added),
			strconv.FormatInt(r.Replaced, 10),
			joinInts(r.Ignored),
		})
	}
	return rows
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}

func newAddLibraryCmd() *cobra.Command {
	var (
		name  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "add-library <file>",
		Short: "Import one SMARTS library file",
		Long: "Import a file of 'pattern label' lines as one library. The library name\n" +
			"defaults to the file name without the .smarts extension.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				name = appsmarts.LibraryName(args[0])
			}
			res, err := importLibrary(cmd, args[0], name, force)
			if err != nil {
				return err
			}
			return PrintResult(cmd, libraryImports{res})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "library name (default: file name without .smarts)")
	cmd.Flags().BoolVar(&force, "force", false, "replace a library with the same name")
	return cmd
}

func newAddLibrariesCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "add-libraries <file>...",
		Short: "Import several SMARTS library files, one library per file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := make(libraryImports, 0, len(args))
			for _, path := range args {
				res, err := importLibrary(cmd, path, appsmarts.LibraryName(path), force)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				results = append(results, res)
			}
			return PrintResult(cmd, results)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace libraries with the same name")
	return cmd
}

func importLibrary(cmd *cobra.Command, path, name string, force bool) (*appsmarts.ImportLibraryResult, error) {
	a, err := appFor(cmd)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "failed to open library file").WithDetail(path)
	}
	defer f.Close()

	res, err := a.SMARTS.ImportLibrary(cmd.Context(), &appsmarts.ImportLibraryInput{Name: name, Reader: f, Force: force})
	if err != nil {
		return nil, err
	}
	if len(res.Ignored) > 0 {
		a.Logger.Warn("ignored malformed lines",
			logging.String("file", path),
			logging.Int("count", len(res.Ignored)),
		)
	}
	return res, nil
}

// edgeReportView prints an edge calculation summary.
type edgeReportView struct {
	*appsmarts.EdgeReport
}

func (v edgeReportView) TableHeaders() []string {
	return []string{"Mode", "SMARTS", "Processed", "Added", "Duplicates", "Duration", "Status"}
}

func (v edgeReportView) TableRows() [][]string {
	status := color.GreenString("ok")
	switch {
	case v.ToolFailed:
		status = color.RedString("tool failed")
	case v.Skipped:
		status = color.YellowString("skipped")
	}
	return [][]string{{
		v.Mode,
		strconv.Itoa(v.SMARTS),
		strconv.Itoa(v.Processed),
		strconv.Itoa(v.Added),
		strconv.Itoa(v.Duplicates),
		v.Duration.Round(time.Millisecond).String(),
		status,
	}}
}

func newCalculateEdgesCmd() *cobra.Command {
	var (
		mode   string
		strict bool
	)
	cmd := &cobra.Command{
		Use:   "calculate-edges",
		Short: "Compare every SMARTS pair and store the resulting edges",
		Long: "Run SMARTScompare over all stored SMARTS. --mode Similarity stores undirected\n" +
			"similarity edges, --mode SubsetOfFirst stores directed subset edges.\n" +
			"With --strict a failing comparison tool aborts the command.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFor(cmd)
			if err != nil {
				return err
			}
			report, err := a.SMARTS.CalculateEdges(cmd.Context(), &appsmarts.CalculateEdgesInput{Mode: mode, Strict: strict})
			if err != nil {
				return err
			}
			return PrintResult(cmd, edgeReportView{report})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "comparison mode: Similarity or SubsetOfFirst")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when the comparison tool fails")
	_ = cmd.MarkFlagRequired("mode")
	return cmd
}

// renderView prints a rendering summary.
type renderView struct {
	Kind string `json:"kind"`
	*appsmarts.RenderReport
}

func (v renderView) TableHeaders() []string {
	return []string{"Images", "Rendered", "Failed", "Duration"}
}

func (v renderView) TableRows() [][]string {
	failed := strconv.Itoa(v.Failed)
	if v.Failed > 0 {
		failed = color.RedString(failed)
	}
	return [][]string{{v.Kind, strconv.Itoa(v.Rendered), failed, v.Duration.Round(time.Millisecond).String()}}
}

func newDrawAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "draw-all",
		Short: "Render an SVG of every SMARTS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFor(cmd)
			if err != nil {
				return err
			}
			report, err := a.SMARTS.RenderSMARTS(cmd.Context(), nil)
			if err != nil {
				return err
			}
			return PrintResult(cmd, renderView{Kind: strings.TrimSuffix(ports.SMARTSImagePrefix, "/"), RenderReport: report})
		},
	}
}

func newDrawSubsetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "draw-subsets",
		Short: "Render an SVG of every directed subset edge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFor(cmd)
			if err != nil {
				return err
			}
			report, err := a.SMARTS.RenderSubsets(cmd.Context(), nil)
			if err != nil {
				return err
			}
			return PrintResult(cmd, renderView{Kind: strings.TrimSuffix(ports.SubsetImagePrefix, "/"), RenderReport: report})
		},
	}
}

type exportView struct {
	*ports.ExportStats
}

func (v exportView) TableHeaders() []string { return []string{"Nodes", "Edges"} }

func (v exportView) TableRows() [][]string {
	return [][]string{{strconv.Itoa(v.Nodes), strconv.Itoa(v.Edges)}}
}

func newExportGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export-graph",
		Short: "Write the SMARTS graph to Neo4j",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFor(cmd)
			if err != nil {
				return err
			}
			stats, err := a.SMARTS.ExportGraph(cmd.Context())
			if err != nil {
				return err
			}
			return PrintResult(cmd, exportView{stats})
		},
	}
}
