// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cli implements the zipstream command.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "zipstream [flags] INPUT... -o OUTPUT",
	Short: "Write a ZIP archive as a stream",
	Long: `zipstream writes its inputs to a ZIP archive in the order they are given.

An INPUT is a file, a directory, "-" for standard input or s3://bucket/key.
OUTPUT is a file, "-" for standard output or s3://bucket/key.

example:

	zipstream a.txt b.txt -o out.zip
	zipstream --strategy stream --no-compress big.iso -o s3://backups/big.zip
	cat log.txt | zipstream --stdin-name log.txt - -o - > logs.zip`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			cmd.Usage()
			return err
		}
		return run(cmd.Context(), cfg, args, cmd.OutOrStdout())
	},
	SilenceUsage: true,
}

// Execute runs the root command and exits the process on failure.
func Execute(version string) {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.zipstream.yaml)")
	flags.StringP("output", "o", "", "(required) output file, \"-\" for stdout or s3://bucket/key")
	flags.Bool("compress", true, "deflate file contents")
	flags.Int("level", 6, "deflate level, 0-9")
	flags.Bool("zip64", false, "force the zip64 format for every entry and the end record")
	flags.String("strategy", strategyFile, "how files are added: file, buffer or stream")
	flags.String("comment", "", "archive comment")
	flags.BoolP("recursive", "r", false, "add directory contents instead of an empty directory entry")
	flags.String("stdin-name", "stdin", "entry name for standard input")
	flags.Bool("digest", false, "print the sha256 digest of the archive")
	flags.Int("max-stats", 16, "maximum concurrent file stats")
	flags.BoolP("verbose", "v", false, "log each entry as it is written")

	for _, name := range []string{
		"output", "compress", "level", "zip64", "strategy", "comment",
		"recursive", "stdin-name", "digest", "max-stats", "verbose",
	} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			log.Fatal(err)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".zipstream")
	}

	viper.SetEnvPrefix("zipstream")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.Debugf("using config file: %s", viper.ConfigFileUsed())
	}

	if viper.GetBool("verbose") {
		log.SetLevel(log.DebugLevel)
	}
}

// config is the resolved set of command options.
type config struct {
	Output    string
	Compress  bool
	Level     int
	Zip64     bool
	Strategy  string
	Comment   string
	Recursive bool
	StdinName string
	Digest    bool
	MaxStats  int
	Verbose   bool
}

func loadConfig() (config, error) {
	cfg := config{
		Output:    viper.GetString("output"),
		Compress:  viper.GetBool("compress"),
		Level:     viper.GetInt("level"),
		Zip64:     viper.GetBool("zip64"),
		Strategy:  viper.GetString("strategy"),
		Comment:   viper.GetString("comment"),
		Recursive: viper.GetBool("recursive"),
		StdinName: viper.GetString("stdin-name"),
		Digest:    viper.GetBool("digest"),
		MaxStats:  viper.GetInt("max-stats"),
		Verbose:   viper.GetBool("verbose"),
	}

	if cfg.Output == "" {
		return cfg, errors.New("missing -o")
	}
	switch cfg.Strategy {
	case strategyFile, strategyBuffer, strategyStream:
	default:
		return cfg, fmt.Errorf("unknown strategy %q", cfg.Strategy)
	}
	return cfg, nil
}
