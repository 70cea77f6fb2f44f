// taskpilotd is the TaskPilot background service bootstrap. Every launch
// runs the same binary; arbitration decides which one becomes the main
// instance on the well-known port and which ones proxy to it.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is this build's semantic version, stamped by the release pipeline
// via -ldflags. It is what peers compare during arbitration.
var version = "0.0.0-dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taskpilotd",
		Short: "TaskPilot background service",
		Long: `taskpilotd arbitrates a single main instance across every launch on this
machine. The winner serves the well-known port; every other launch either
proxies to it or, on a build version mismatch, negotiates a takeover.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settingsFromViper())
		},
	}

	flags := cmd.Flags()
	flags.Int("port", defaultPort, "well-known port the main instance serves")
	flags.String("host", "127.0.0.1", "host the well-known port is bound and probed on")
	flags.String("lock-path", filepath.Join(os.TempDir(), "taskpilot.lock"), "path of the instance lock file")
	flags.Int("attempts", 3, "arbitration attempts before giving up")
	flags.Duration("port-wait", 10*time.Second, "how long to wait for a displaced main to release the port")
	cobra.CheckErr(viper.BindPFlags(flags))

	viper.SetEnvPrefix("TASKPILOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	return cmd
}

func settingsFromViper() settings {
	return settings{
		host:     viper.GetString("host"),
		port:     viper.GetInt("port"),
		lockPath: viper.GetString("lock-path"),
		attempts: viper.GetInt("attempts"),
		portWait: viper.GetDuration("port-wait"),
	}
}
