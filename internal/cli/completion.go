package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/cbout22/assetsync/internal/manifest"
)

// resolveManifestName completes destination names of the manifest at path.
func resolveManifestName(path, toComplete string) ([]string, cobra.ShellCompDirective) {
	m, err := manifest.Load(path)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	names, err := m.Names()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var completions []string
	for i, name := range names {
		if strings.HasPrefix(name, toComplete) {
			completions = append(completions, formatCompletionLine(name, m.Assets[i].Source))
		}
	}

	return completions, cobra.ShellCompDirectiveNoFileComp
}

// formatCompletionLine renders "name\tsource" so shells show the source as
// description.
func formatCompletionLine(name, source string) string {
	return name + "\t" + source
}
