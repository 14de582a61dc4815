package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage cached hierarchies",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached hierarchy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return outputError("cache clear", err)
		}
		engine, err := openEngine(cfg)
		if err != nil {
			return outputError("cache clear", err)
		}
		defer engine.Close()

		n, err := engine.ClearCache()
		if err != nil {
			return outputError("cache clear", err)
		}
		return outputResult(CLIResult{Command: "cache clear", Results: fmt.Sprintf("removed %d cached hierarchies", n)})
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
}
