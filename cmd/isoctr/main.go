// Command isoctr is the thin command-line surface around the
// isolation pipeline: argument parsing and help/version output are
// deliberately external to the core (spec §1), wired here with
// Cobra the same way the teacher's cmd/gocker does.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/isoctr/isoctr/internal/coordinator"
	"github.com/isoctr/isoctr/internal/launch"
	"github.com/isoctr/isoctr/internal/logging"
)

var (
	flagUID        int
	flagMount      string
	flagCmd        string
	flagArg        string
	flagVerbosity  bool
	flagHostname   string
	flagCGroupRoot string
	flagScratch    string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "isoctr",
		Short:   "Launch a command inside an isolated Linux container",
		Version: "0.1.0",
		RunE:    runLaunch,
	}

	root.Flags().IntVar(&flagUID, "uid", 0, "in-container uid/gid (required)")
	root.Flags().StringVar(&flagMount, "mnt", "", "directory to become the container root (required)")
	root.Flags().StringVar(&flagCmd, "cmd", "", "absolute path of the command to execute (required)")
	root.Flags().StringVar(&flagArg, "arg", "", "single optional argument to pass")
	root.Flags().BoolVar(&flagVerbosity, "verbosity", false, "enable trace-level logs")
	root.Flags().StringVar(&flagHostname, "hostname", "", "container hostname; random suffix appended if empty")
	root.Flags().StringVar(&flagCGroupRoot, "cgroup-root", "/sys/fs/cgroup", "cgroup v2 mount point")
	root.Flags().StringVar(&flagScratch, "scratch-root", "/var/tmp", "scratch area for the mount pivot")

	_ = root.MarkFlagRequired("uid")
	_ = root.MarkFlagRequired("mnt")
	_ = root.MarkFlagRequired("cmd")

	return root
}

func runLaunch(cmd *cobra.Command, args []string) error {
	log := logging.NewLogrusSink(flagVerbosity)

	if coordinator.IsInit() {
		cfg, err := initConfigFromEnv()
		if err != nil {
			log.Errorf("init config: %v", err)
			os.Exit(1)
		}
		os.Exit(coordinator.RunInit(cfg, log))
	}

	if os.Geteuid() != 0 {
		log.Warnf("running as non-root (euid %d): namespace setup, cgroup attachment, and the uid/gid remap will likely fail", os.Geteuid())
	}

	cfg := launch.Config{
		Request: launch.ContainerRequest{
			UID:         flagUID,
			Hostname:    hostnameOrGenerated(),
			MountSource: flagMount,
			Command:     flagCmd,
			Argument:    flagArg,
			HasArgument: flagArg != "",
		},
		UIDMapPolicy: launch.DefaultUIDMapPolicy,
		CGroupLimits: launch.DefaultCGroupLimits,
		CGroupRoot:   flagCGroupRoot,
		ScratchRoot:  flagScratch,
		Verbose:      flagVerbosity,
	}

	os.Exit(coordinator.Run(cfg, log))
	return nil
}

// hostnameOrGenerated resolves ContainerRequest.Hostname's uniqueness
// requirement (spec §3: "unique per concurrent launch"): if the
// caller didn't supply one, a short uuid suffix makes concurrent
// unnamed launches collision-free without the caller having to invent
// one itself.
func hostnameOrGenerated() string {
	if flagHostname != "" {
		return flagHostname
	}
	return "isoctr-" + uuid.NewString()[:8]
}

// initConfigFromEnv rebuilds Init's Config from the same CLI flags
// Cobra already re-parsed from argv (the Supervisor re-execs with its
// own os.Args), substituting the Supervisor's resolved hostname for
// whatever --hostname was given so Init's UTS hostname matches the
// cgroup directory the Supervisor already created.
func initConfigFromEnv() (launch.Config, error) {
	hostname, ok := coordinator.HostnameFromEnv()
	if !ok {
		return launch.Config{}, fmt.Errorf("%s not set: not a re-exec'd init process", "ISOCTR_HOSTNAME")
	}

	return launch.Config{
		Request: launch.ContainerRequest{
			UID:         flagUID,
			Hostname:    hostname,
			MountSource: flagMount,
			Command:     flagCmd,
			Argument:    flagArg,
			HasArgument: flagArg != "",
		},
		UIDMapPolicy: launch.DefaultUIDMapPolicy,
		CGroupLimits: launch.DefaultCGroupLimits,
		CGroupRoot:   flagCGroupRoot,
		ScratchRoot:  flagScratch,
		Verbose:      flagVerbosity,
	}, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
