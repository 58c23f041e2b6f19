package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ccastromar/aos-healthcare-assistant/internal/app"
	"github.com/ccastromar/aos-healthcare-assistant/internal/config"
	"github.com/ccastromar/aos-healthcare-assistant/internal/logx"
)

var (
	// Global flags
	verbose bool
	envFile string

	env *config.EnvVars
)

// runner is the minimal interface our app must satisfy for running.
type runner interface{ Run(context.Context) error }

// appCtor is a constructor indirection to enable testing without launching the real app.
var appCtor = func(env *config.EnvVars) (runner, error) { return app.New(env) }

// fatalf indirection allows testing fatal paths without exiting the test process.
var fatalf = log.Fatalf

var loadEnv = func(files ...string) (*config.EnvVars, error) { return config.LoadEnv(files...) }

var rootCmd = &cobra.Command{
	Use:   "medcrew",
	Short: "AI healthcare assistant: diagnosis and treatment crews",
	Long: `medcrew runs a crew of LLM agents (a medical diagnostician and a treatment
advisor) over patient symptoms and history, and exports the resulting plan
as a Word document.

Results are preliminary and must be reviewed by a qualified clinician.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var files []string
		if envFile != "" {
			files = append(files, envFile)
		}
		e, err := loadEnv(files...)
		if err != nil {
			return fmt.Errorf("load environment: %w", err)
		}
		level := e.LogLevel
		if verbose {
			level = "debug"
		}
		if err := logx.Init(level, e.AppEnv); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		env = e
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logx.Sync()
	},
}

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web form, JSON API and crew workers",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if servePort != "" {
			env.Port = servePort
		}
		run(cmd.Context(), env)
	},
}

func run(ctx context.Context, env *config.EnvVars) {
	a, err := appCtor(env)
	if err != nil {
		fatalf("error initializing app: %v", err)
		return
	}
	if err := a.Run(ctx); err != nil {
		fatalf("error running app: %v", err)
		return
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default .env)")

	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "HTTP port to listen on (overrides PORT)")

	rootCmd.AddCommand(serveCmd, consultCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
