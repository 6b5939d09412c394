package main

import (
	"github.com/spf13/cobra"

	"github.com/shahar-caura/salestalk/internal/review"
	"github.com/shahar-caura/salestalk/internal/taxonomy"
	"github.com/shahar-caura/salestalk/vocab"
)

func newCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion <bash|zsh|fish>",
		Short: "Print a shell completion script for salestalk",
		Long: `Print a completion script covering salestalk's subcommands and flag values:
the languages of the embedded taxonomy for classify --lang, review statuses
for review list --status, and the accepted --log-level and --log-format values.

Load it for the current shell session:

  bash:  source <(salestalk completion bash)
  zsh:   source <(salestalk completion zsh)
  fish:  salestalk completion fish | source

Add the same line to your shell profile to keep it across sessions.
`,
		Args:        cobra.ExactArgs(1),
		ValidArgs:   []string{"bash", "zsh", "fish"},
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(out, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			default:
				return cmd.Help()
			}
		},
	}
	return cmd
}

// fixedValues completes a flag from a closed set.
func fixedValues(values ...string) cobra.CompletionFunc {
	return cobra.FixedCompletions(values, cobra.ShellCompDirectiveNoFileComp)
}

// languageValues completes --lang from the embedded taxonomy. A taxonomy
// that fails to load offers nothing rather than an error.
func languageValues(*cobra.Command, []string, string) ([]cobra.Completion, cobra.ShellCompDirective) {
	v, err := taxonomy.Load(vocab.FS, vocab.DefaultEnv, vocab.DefaultVersion)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var out []cobra.Completion
	for _, l := range v.Languages() {
		out = append(out, cobra.CompletionWithDesc(l.Code, l.Name))
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// registerCompletions attaches value completion to flags across the tree.
// Flags a command does not define are skipped.
func registerCompletions(root *cobra.Command) {
	reg := func(cmd *cobra.Command, flag string, fn cobra.CompletionFunc) {
		if cmd.Flag(flag) == nil {
			return
		}
		_ = cmd.RegisterFlagCompletionFunc(flag, fn)
	}
	reg(root, "log-level", fixedValues("debug", "info", "warn", "error"))
	reg(root, "log-format", fixedValues("text", "json"))
	for _, cmd := range root.Commands() {
		switch cmd.Name() {
		case "classify":
			reg(cmd, "lang", languageValues)
		case "review":
			for _, sub := range cmd.Commands() {
				reg(sub, "status", fixedValues(string(review.StatusPending), string(review.StatusResolved), "all"))
			}
		}
	}
}
