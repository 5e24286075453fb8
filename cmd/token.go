package cmd

import (
	"academy_backend/internal/util"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token <userID>",
	Short: "为本地调试签发 JWT",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		email, _ := cmd.Flags().GetString("email")
		ttl := cfg.JWT.ExpireTime
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		token, err := util.GenerateJWT(args[0], email, cfg.JWT.Secret, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("email", "", "写入 token 的邮箱")
}
