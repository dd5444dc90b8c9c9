// The showdown command runs a dedicated game session server that registers
// with the orchestration backend, hosts one match and exits.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dcrodman/showdown/internal"
	"github.com/dcrodman/showdown/internal/core"
)

var configFlag string

func main() {
	rootCmd := &cobra.Command{
		Use:   "showdown [port=N] [password=S]",
		Short: "Showdown dedicated session server and related tools",
		// The fleet launcher passes engine switches we don't know about; ignore them.
		Args:               cobra.ArbitraryArgs,
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
		SilenceUsage:       true,
		RunE:               serverCommand,
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "./", "Path to the directory containing the server config file")
	core.RegisterSwitchFlags(rootCmd.Flags())

	resultsCmd.Flags().IntVarP(&limitFlag, "limit", "n", 20, "Maximum number of results to list")
	rootCmd.AddCommand(resultsCmd)

	rootCmd.SetArgs(core.NormalizeSwitches(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func serverCommand(cmd *cobra.Command, _ []string) error {
	config, err := core.LoadConfig(configFlag)
	if err != nil {
		return err
	}
	switches, err := core.SwitchesFromFlags(cmd.Flags())
	if err != nil {
		return err
	}
	config.ApplySwitches(switches)
	fmt.Println("using configuration directory:", configFlag)

	// Bind the Controller to one top-level server context so that we can shut down cleanly.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Register a SIGTERM handler so that Ctrl-C will shut the server down gracefully.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go exitHandler(cancel, c)

	controller := &internal.Controller{Config: config}
	if err := controller.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// exitHandler cancels the server context on the first signal and hard exits
// on the second.
func exitHandler(cancelFn func(), c chan os.Signal) {
	<-c
	fmt.Println("waiting to shut down gracefully...")
	cancelFn()

	<-c
	fmt.Println("hard exiting (killed)")
	os.Exit(1)
}
