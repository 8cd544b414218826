// Command dirtree walks a directory, honoring .gitignore rules, and prints
// the resulting tree.
package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/go-logfmt/logfmt"
	"github.com/spf13/cobra"

	"github.com/dl/dirtree/internal/walker"
)

func main() {
	os.Exit(run())
}

func run() int {
	var root string

	cmd := &cobra.Command{
		Use:   "dirtree",
		Short: "Walk a directory tree, applying .gitignore rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return build(root)
		},
	}
	cmd.Flags().StringVar(&root, "root", ".", "directory to walk")

	if err := cmd.Execute(); err != nil {
		return 2
	}
	return 0
}

func build(root string) error {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Formatter: log.LogfmtFormatter,
	})

	tree, err := walker.Build(root, logger)
	if err != nil {
		logger.Error("build failed", "root", root, "err", err)
		return err
	}
	defer tree.Close()

	os.Stdout.WriteString(tree.String())

	enc := logfmt.NewEncoder(os.Stderr)
	enc.EncodeKeyval("root", root)
	enc.EncodeKeyval("nodes", tree.NodeCount())
	enc.EndRecord()

	return nil
}
