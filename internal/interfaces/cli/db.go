package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/SMARTSexplore/internal/config"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

// NewDBCmd groups the database maintenance commands.
func NewDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Create, migrate and reset the database",
	}
	cmd.AddCommand(
		newDBInitCmd(),
		newDBResetCmd(),
		newDBResetMoleculesCmd(),
		newDBResetEdgesCmd(),
		newDBMigrateCmd(),
	)
	return cmd
}

func newDBInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFor(cmd)
			if err != nil {
				return err
			}
			// Opening a SQLite store already migrated it.
			if a.Config.Database.Driver == config.DriverPostgres {
				m, err := a.Migrator()
				if err != nil {
					return err
				}
				if err := m.Up(); err != nil {
					return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create schema")
				}
			}
			PrintSuccess(cmd, "database initialized")
			return nil
		},
	}
}

func newDBResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete every SMARTS, edge, molecule set and rendered image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFor(cmd)
			if err != nil {
				return err
			}
			if err := a.ResetAll(cmd.Context()); err != nil {
				return err
			}
			PrintSuccess(cmd, "database reset")
			return nil
		},
	}
}

func newDBResetMoleculesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-molecules",
		Short: "Delete every molecule set with its molecules and matches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFor(cmd)
			if err != nil {
				return err
			}
			if err := a.Molecules.ResetMolecules(cmd.Context()); err != nil {
				return err
			}
			PrintSuccess(cmd, "molecules reset")
			return nil
		},
	}
}

func newDBResetEdgesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-edges",
		Short: "Delete every similarity and subset edge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFor(cmd)
			if err != nil {
				return err
			}
			if err := a.SMARTS.ResetEdges(cmd.Context()); err != nil {
				return err
			}
			PrintSuccess(cmd, "edges reset")
			return nil
		},
	}
}

type migrationVersion struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

func (v migrationVersion) TableHeaders() []string { return []string{"Version", "Dirty"} }

func (v migrationVersion) TableRows() [][]string {
	return [][]string{{strconv.FormatUint(uint64(v.Version), 10), strconv.FormatBool(v.Dirty)}}
}

func newDBMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back PostgreSQL schema migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFor(cmd)
			if err != nil {
				return err
			}
			m, err := a.Migrator()
			if err != nil {
				return err
			}
			if err := m.Up(); err != nil {
				return err
			}
			PrintSuccess(cmd, "migrations applied")
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFor(cmd)
			if err != nil {
				return err
			}
			m, err := a.Migrator()
			if err != nil {
				return err
			}
			if err := m.Down(steps); err != nil {
				return err
			}
			PrintSuccess(cmd, "rolled back "+strconv.Itoa(steps)+" migration(s)")
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFor(cmd)
			if err != nil {
				return err
			}
			m, err := a.Migrator()
			if err != nil {
				return err
			}
			v, dirty, err := m.Version()
			if err != nil {
				return err
			}
			return PrintResult(cmd, migrationVersion{Version: v, Dirty: dirty})
		},
	}

	force := &cobra.Command{
		Use:   "force <version>",
		Short: "Mark a version as applied to recover from a dirty state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return errors.Newf(errors.ErrCodeValidation, "invalid version %q", args[0])
			}
			a, err := appFor(cmd)
			if err != nil {
				return err
			}
			m, err := a.Migrator()
			if err != nil {
				return err
			}
			if err := m.Force(v); err != nil {
				return err
			}
			PrintSuccess(cmd, "forced version "+args[0])
			return nil
		},
	}

	cmd.AddCommand(up, down, version, force)
	return cmd
}
