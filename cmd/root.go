package cmd

import (
	"academy_backend/internal/config"
	"path/filepath"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "academy",
	Short:        "学院课节后端",
	Long:         "学院课节后端：解析课节组件、保存作答、AI 改写与学习进度。",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "configs", "配置目录，需包含 config.yaml")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(tokenCmd)
}

// loadConfig 读取 --config 目录，返回配置与 config.yaml 的路径
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	dir, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(dir)
	if err != nil {
		return nil, "", err
	}
	return cfg, filepath.Join(dir, "config.yaml"), nil
}
