package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tenantd",
	Short: "Provision and manage tenant application stacks on Kubernetes",
	Long: `tenantd provisions isolated application stacks for named tenants on a
Kubernetes cluster. Each tenant gets its own namespace and a packaged
application release, and tenantd tracks the tenant through its whole
lifecycle from provisioning to deletion.`,
	// SilenceUsage prevents printing the usage message on errors we
	// handle ourselves (invalid arguments, failed cluster connections)
	SilenceUsage: true,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "tenantd version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
