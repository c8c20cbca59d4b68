package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ucext/citizenconnect/pkg/api/v1/client"
	"github.com/ucext/citizenconnect/pkg/api/v1/routes"
)

// flag names
const (
	flagServerAddress = "server-address"
	flagUserID        = "user-id"
)

// environment variable names
const (
	envServerAddress = "CITIZENCONNECT_SERVER_ADDRESS"
	envUserID        = "CITIZENCONNECT_USER_ID"
)

var (
	// apiClient is the shared API client instance
	apiClient client.Client
	// serverAddress holds the target API server address. Flag parsing sets this.
	serverAddress string
	// userID is the identity sent with every request
	userID uint
	// newClient builds the API client; tests replace it
	newClient = client.NewClient
)

// initClient initializes the API client
func initClient() error {
	var err error
	opts := client.DefaultOptions()
	opts.BaseURL = serverAddress
	opts.UserID = userID

	apiClient, err = newClient(opts)
	return err
}

func init() {
	// PersistentPreRunE handles the env var overrides
	RootCmd.PersistentFlags().StringVarP(&serverAddress, flagServerAddress, "s", routes.DefaultBaseURL,
		"Address of the API server (env: "+envServerAddress+")")
	RootCmd.PersistentFlags().UintVarP(&userID, flagUserID, "u", 0,
		"User the requests are made for (env: "+envUserID+")")

	RootCmd.AddCommand(GetJobsCmd())
	RootCmd.AddCommand(GetAccountsCmd())
	RootCmd.AddCommand(GetPostsCmd())
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "citizenconnect",
	Short: "CitizenConnect CLI - publish to social accounts through the CitizenConnect API",
	Long: `CitizenConnect CLI is a command line tool for connecting social accounts,
publishing media and text posts, and following publish jobs through the CitizenConnect API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// Flag > Env Var > Default
		if !cmd.Flags().Changed(flagServerAddress) {
			if envAddr := os.Getenv(envServerAddress); envAddr != "" {
				serverAddress = envAddr
			}
		}
		if !cmd.Flags().Changed(flagUserID) {
			if envUser := os.Getenv(envUserID); envUser != "" {
				id, err := strconv.ParseUint(envUser, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid %s: %w", envUserID, err)
				}
				userID = uint(id)
			}
		}

		if serverAddress == "" {
			return fmt.Errorf("server address cannot be empty")
		}
		if userID == 0 {
			return fmt.Errorf("a user id is required: set --%s or %s", flagUserID, envUserID)
		}
		return initClient()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return RootCmd.Execute()
}

// printJSON pretty prints v to the command output
func printJSON(cmd *cobra.Command, v interface{}) error {
	prettyJSON, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error formatting response: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(prettyJSON))
	return err
}
