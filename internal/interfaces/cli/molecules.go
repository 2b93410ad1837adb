package cli

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	appmolecule "github.com/turtacn/SMARTSexplore/internal/application/molecule"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

// NewMoleculesCmd groups the molecule set commands.
func NewMoleculesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "molecules",
		Short: "Import molecule sets and render molecules",
	}
	cmd.AddCommand(newAddMoleculeSetCmd(), newDrawMoleculesCmd())
	return cmd
}

type moleculeSetView struct {
	*appmolecule.AddSetResult
}

func (v moleculeSetView) TableHeaders() []string {
	return []string{"Molecule set", "Molecules", "Matches", "Ignored lines"}
}

func (v moleculeSetView) TableRows() [][]string {
	return [][]string{{
		strconv.FormatInt(v.MoleculeSetID, 10),
		strconv.Itoa(v.Molecules),
		strconv.Itoa(v.Matches),
		joinInts(v.Ignored),
	}}
}

func newAddMoleculeSetCmd() *cobra.Command {
	var (
		name  string
		match bool
	)
	cmd := &cobra.Command{
		Use:   "add-moleculeset <file>",
		Short: "Import a file of 'smiles label' lines as a molecule set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFor(cmd)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeBadRequest, "failed to open molecule file").WithDetail(args[0])
			}
			defer f.Close()

			if name == "" {
				base := filepath.Base(args[0])
				name = strings.TrimSuffix(base, filepath.Ext(base))
			}
			res, err := a.Molecules.AddMoleculeSet(cmd.Context(), &appmolecule.AddSetInput{Name: name, Reader: f, Match: match})
			if err != nil {
				return err
			}
			return PrintResult(cmd, moleculeSetView{res})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "molecule set name (default: file name without extension)")
	cmd.Flags().BoolVar(&match, "match", false, "match the new set against every SMARTS")
	return cmd
}

type drawnView struct {
	MoleculeSetID int64 `json:"molecule_set_id"`
	Rendered      int   `json:"rendered"`
}

func (v drawnView) TableHeaders() []string { return []string{"Molecule set", "Rendered"} }

func (v drawnView) TableRows() [][]string {
	return [][]string{{strconv.FormatInt(v.MoleculeSetID, 10), strconv.Itoa(v.Rendered)}}
}

func newDrawMoleculesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "draw <setid>",
		Short: "Render an SVG of every molecule of one set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || setID <= 0 {
				return errors.Newf(errors.ErrCodeValidation, "invalid molecule set id %q", args[0])
			}
			a, err := appFor(cmd)
			if err != nil {
				return err
			}
			n, err := a.Molecules.RenderSet(cmd.Context(), setID)
			if err != nil {
				return err
			}
			return PrintResult(cmd, drawnView{MoleculeSetID: setID, Rendered: n})
		},
	}
}
