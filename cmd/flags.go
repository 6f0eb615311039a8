package cmd

import (
	"github.com/spf13/cobra"
)

// addRunFlags registers the flags that override relocation settings. Their
// names are the keys config.Load binds.
func addRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringP("bundle-dir", "d", "", "bundling subdirectory relative to each package root")
	flags.StringArray("system-prefix", nil, "path prefix never bundled (can be repeated)")
	flags.Bool("strict", false, "fail before changing anything when a dependency cannot be resolved")
	flags.IntP("parallel", "p", 0, "number of files inspected concurrently")
	flags.String("executable-path", "", "directory substituted for @executable_path")
	flags.StringArrayP("extension", "e", nil, "only inspect files with this suffix (can be repeated)")
	flags.StringArrayP("exclude", "x", nil, "exempt dependencies matching regex from bundling (can be repeated)")
	flags.Bool("package-dirs", false, "bundle into each top-level package of an archive")
}

func addRelocateFlags(cmd *cobra.Command) {
	addRunFlags(cmd)

	flags := cmd.Flags()
	flags.String("signer", "", "signature refresh: builtin, codesign or none")
	flags.Bool("sanitize-rpaths", true, "drop absolute rpaths that point outside the package")
	flags.String("reports", "", "directory to store a YAML report per relocated path")
}
