// Copyright (c) 2026 The Tcpserv Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command tcpservd is a small echo daemon built on tcpserv and the
// kernel-socket stack, mostly useful for poking at the accept queue from
// real TCP clients.
package main

import (
	"os"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/embnet/tcpserv/pkg/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tcpservd",
	Short: "TCP echo daemon built on the tcpserv accept queue.",
	Long: `TCP echo daemon built on the tcpserv accept queue, For example:
  tcpservd serve --port=7000 --backlog=8 --nodelay`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logging.Errorf("%v", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tcpservd.yaml)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			logging.Errorf("%v", err)
			os.Exit(1)
		}

		// Search config in home directory with name ".tcpservd" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".tcpservd")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		logging.Infof("using config file: %s", viper.ConfigFileUsed())
	}
}
