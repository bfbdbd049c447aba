package backends

import (
	"fmt"

	"github.com/flagforge/storecheck/cmd/util"
	"github.com/spf13/cobra"
)

// BackendsCmd prints the capability matrix of the compiled-in backends.
var BackendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List the compiled-in backends and their capabilities",
	Long: `List every backend this binary can probe, the calling convention the
backend exposes natively, whether it supports the pre-commit hook (and
with it the concurrency scenarios), and where the records live.`,
	Run: run,
}

func run(_ *cobra.Command, _ []string) {
	fmt.Printf("%-12s%-16s%-18s%s\n", "BACKEND", "CONVENTION", "PRE-COMMIT HOOK", "STORAGE")
	for _, c := range util.Capabilities() {
		hook := "yes"
		if !c.Hook {
			hook = "no (races skip)"
		}
		fmt.Printf("%-12s%-16s%-18s%s\n", c.Name, c.Convention, hook, c.Storage)
	}
}
