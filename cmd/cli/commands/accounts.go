package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ucext/citizenconnect/pkg/api/v1/handlers"
)

func init() {
	accountsCmd.AddCommand(listAccountsCmd)
	accountsCmd.AddCommand(accountStatusCmd)
	accountsCmd.AddCommand(connectAccountCmd)
	accountsCmd.AddCommand(disconnectAccountCmd)

	listAccountsCmd.Flags().StringP("platform", "p", "", "Filter by platform")
	listAccountsCmd.Flags().StringP("type", "t", "", "Filter by account type (user, facebook_page, instagram_account)")

	for _, cmd := range []*cobra.Command{accountStatusCmd, connectAccountCmd, disconnectAccountCmd} {
		cmd.Flags().StringP("platform", "p", "", "Platform (facebook, instagram, linkedin, x)")
		_ = cmd.MarkFlagRequired("platform")
	}

	postsCmd.AddCommand(createPostCmd)
	createPostCmd.Flags().StringP("platform", "p", "", "Platform to post to (facebook, linkedin, x)")
	createPostCmd.Flags().StringP("account", "a", "", "Facebook page id; the connected user elsewhere")
	createPostCmd.Flags().StringP("message", "m", "", "Text of the post")
	_ = createPostCmd.MarkFlagRequired("platform")
	_ = createPostCmd.MarkFlagRequired("message")
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage connected social accounts",
}

var listAccountsCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected accounts, pages and Instagram accounts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		platform, _ := cmd.Flags().GetString("platform")
		accountType, _ := cmd.Flags().GetString("type")

		accounts, err := apiClient.ListAccounts(cmd.Context(), platform, accountType)
		if err != nil {
			return fmt.Errorf("error fetching accounts: %w", err)
		}
		return printJSON(cmd, accounts)
	},
}

var accountStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a platform is connected",
	RunE: func(cmd *cobra.Command, _ []string) error {
		platform, _ := cmd.Flags().GetString("platform")

		status, err := apiClient.AccountStatus(cmd.Context(), platform)
		if err != nil {
			return fmt.Errorf("error fetching status: %w", err)
		}
		return printJSON(cmd, status)
	},
}

var connectAccountCmd = &cobra.Command{
	Use:   "connect",
	Short: "Print the consent URL that connects a platform",
	RunE: func(cmd *cobra.Command, _ []string) error {
		platform, _ := cmd.Flags().GetString("platform")

		consent, err := apiClient.ConnectURL(cmd.Context(), platform)
		if err != nil {
			return fmt.Errorf("error starting connection: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Open this URL in a browser to connect:")
		fmt.Fprintln(cmd.OutOrStdout(), consent)
		return nil
	},
}

var disconnectAccountCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Remove the stored tokens of a platform",
	RunE: func(cmd *cobra.Command, _ []string) error {
		platform, _ := cmd.Flags().GetString("platform")

		resp, err := apiClient.DisconnectAccount(cmd.Context(), platform)
		if err != nil {
			return fmt.Errorf("error disconnecting: %w", err)
		}
		return printJSON(cmd, resp)
	},
}

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "Publish text posts",
}

var createPostCmd = &cobra.Command{
	Use:   "create",
	Short: "Publish a text post",
	RunE: func(cmd *cobra.Command, _ []string) error {
		platform, _ := cmd.Flags().GetString("platform")
		account, _ := cmd.Flags().GetString("account")
		message, _ := cmd.Flags().GetString("message")

		post, err := apiClient.CreatePost(cmd.Context(), handlers.CreatePostRequest{
			Platform:  platform,
			AccountID: account,
			Message:   message,
		})
		if err != nil {
			return fmt.Errorf("error creating post: %w", err)
		}
		return printJSON(cmd, post)
	},
}

// GetAccountsCmd returns the accounts command
func GetAccountsCmd() *cobra.Command {
	return accountsCmd
}

// GetPostsCmd returns the posts command
func GetPostsCmd() *cobra.Command {
	return postsCmd
}
