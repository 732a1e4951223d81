// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "ofchanneld",
	Short:         "OpenFlow connection-handling daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: /etc/ofchanneld/config.yaml)")
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command; called once from main.
func Execute() error {
	return rootCmd.Execute()
}
