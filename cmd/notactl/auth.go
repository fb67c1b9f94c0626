package main

import (
	userRequest "NotaLink/internal/modules/user/application/dto/request"

	"github.com/spf13/cobra"
)

var (
	authUsername string
	authPassword string
	authNickname string
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication helpers",
}

var authTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token via the dev login",
	Long: `Issue a bearer token. A first login with an unused username
registers the account; later logins must present the same password.

  notactl auth token --username dev --password dev`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := callAPI("/auth/token", userRequest.TokenRequest{
			Username: authUsername,
			Password: authPassword,
			Nickname: authNickname,
		})
		if err != nil {
			return err
		}
		return printResult(data)
	},
}

func init() {
	authTokenCmd.Flags().StringVar(&authUsername, "username", "", "Account username")
	authTokenCmd.Flags().StringVar(&authPassword, "password", "", "Account password")
	authTokenCmd.Flags().StringVar(&authNickname, "nickname", "", "Display name on first registration")
	_ = authTokenCmd.MarkFlagRequired("username")
	_ = authTokenCmd.MarkFlagRequired("password")

	authCmd.AddCommand(authTokenCmd)
	rootCmd.AddCommand(authCmd)
}
