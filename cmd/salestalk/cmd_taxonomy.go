package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shahar-caura/salestalk/internal/intent"
	"github.com/shahar-caura/salestalk/internal/taxonomy"
)

func newTaxonomyCmd(a *app) *cobra.Command {
	var dir, env, ver string

	cmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "Inspect taxonomy versions",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "taxonomy root directory (overrides taxonomy.dir)")
	cmd.PersistentFlags().StringVar(&env, "env", "", "taxonomy environment (overrides taxonomy.env)")
	cmd.PersistentFlags().StringVar(&ver, "version", "", "taxonomy version (overrides taxonomy.version)")

	load := func(cmd *cobra.Command) (*taxonomy.Version, error) {
		f := cmd.Flags()
		if f.Changed("dir") {
			a.cfg.Taxonomy.Dir = dir
		}
		if f.Changed("env") {
			a.cfg.Taxonomy.Env = env
		}
		if f.Changed("version") {
			a.cfg.Taxonomy.Version = ver
		}
		store, err := a.openStore()
		if err != nil {
			return nil, err
		}
		return store.Current(), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load a taxonomy version and run its integrity checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := load(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok %s: %d intents, %d subjects, %d measures, %d dimensions, %d languages\n",
				v.ID(), len(v.Intents()), len(v.Subjects()), len(v.Measures()), len(v.Dimensions()), len(v.Languages()))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the vocabulary as the model sees it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := load(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n\n%s", v.ID(), intent.FormatVocabulary(v))
			return nil
		},
	})

	return cmd
}
