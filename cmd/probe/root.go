package probe

import (
	"fmt"
	"time"

	"github.com/flagforge/storecheck/cmd/util"
	"github.com/flagforge/storecheck/lib/datastore/conformance"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// ProbeCmd runs the conformance scenarios against a live backend.
	ProbeCmd = &cobra.Command{
		Use:   "probe",
		Short: "Run the conformance scenarios against a live backend",
		Long: `Run the full conformance scenario set against a live backend and report
PASS/FAIL/SKIP per scenario. All data is written into a throwaway
namespace that is removed afterwards, so probing a production server is
safe as long as the namespace prefix does not collide with application
data.`,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return util.BindCommandFlags(cmd)
		},
		RunE: run,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add backend selection flags
	util.SetupBackendFlags(ProbeCmd)

	key := "keep-namespace"
	ProbeCmd.Flags().Bool(key, false, util.WrapString("Do not remove the throwaway namespace after the run (for debugging a failing backend)"))
}

func run(_ *cobra.Command, _ []string) error {
	harness, err := util.OpenHarness()
	if err != nil {
		return err
	}
	defer harness.Close()

	fmt.Println("storecheck conformance probe")
	fmt.Println(harness)

	// Every run gets its own namespace so parallel probes and application
	// data never collide.
	runID := uuid.NewString()[:8]
	cfg, prefixes := namespaced(harness.Conformance(), runID)

	fmt.Printf("Namespace run ID: %s\n\n", runID)

	summary, err := conformance.RunProbe(cfg, func(res conformance.ProbeResult) {
		fmt.Printf("%-5s %-35s %12s\n", res.Status, res.Name, res.Duration.Round(10*time.Microsecond))
		if res.Detail != "" {
			fmt.Printf("      %s\n", res.Detail)
		}
	})
	if err != nil {
		return err
	}

	if !viper.GetBool("keep-namespace") {
		for prefix := range prefixes {
			if err := cfg.Clear(prefix); err != nil {
				logrus.WithField("prefix", prefix).Warnf("failed to clean up namespace: %v", err)
			}
		}
	}

	fmt.Printf("\n%d passed, %d failed, %d skipped\n", summary.Passed, summary.Failed, summary.Skipped)

	if !summary.Ok() {
		return fmt.Errorf("%d scenario(s) failed", summary.Failed)
	}
	return nil
}

// namespaced prefixes every namespace the suite opens with the run ID and
// records which full prefixes were handed out, so they can be cleaned up.
func namespaced(cfg conformance.Config, runID string) (conformance.Config, map[string]bool) {
	seen := map[string]bool{}
	factory, clear := cfg.Factory, cfg.Clear

	cfg.Factory = func(prefix string) (any, error) {
		full := runID + "-" + prefix
		seen[prefix] = true
		return factory(full)
	}
	cfg.Clear = func(prefix string) error {
		return clear(runID + "-" + prefix)
	}
	return cfg, seen
}
