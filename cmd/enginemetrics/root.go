package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "enginemetrics",
	Short: "Collects and serves engineering-productivity and DORA metrics",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.AddCommand(collectCmd, serveCmd)
}

func bindCommon(cmd *cobra.Command) {
	cmd.Flags().String("range", "90d", "range spec: Nd, QN-YYYY, YYYY, or YYYY-MM-DD:YYYY-MM-DD")
	cmd.Flags().String("env", "production", "environment name")
	viper.BindPFlag("range", cmd.Flags().Lookup("range"))
	viper.BindPFlag("env", cmd.Flags().Lookup("env"))
}
