// Copyright 2020 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command taintdemo is a stand-in for the external driver the taint
// domain is designed to be embedded in: it loads a kind/feature
// vocabulary, builds one example Taint value, propagates it across a
// call site, and prints the result. The domain itself never imports a
// CLI framework; this binary is the only place one shows up.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/accesspath"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/config"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/field"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/feature"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/frame"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/method"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/position"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/taint"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/taintcontext"
)

func newLogger(logFile string) *zap.Logger {
	if logFile == "" {
		logger, _ := zap.NewProduction()
		return logger
	}

	writer := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    50, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(writer), zap.InfoLevel)
	return zap.New(core)
}

func newRootCmd() *cobra.Command {
	var vocabularyPath string
	var maxDistance int
	var logFile string

	root := &cobra.Command{
		Use:   "taintdemo",
		Short: "Demonstrates one propagate() call over the taint domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlags(cmd.Flags()); err != nil {
				return err
			}

			logger := newLogger(logFile)
			defer logger.Sync()
			runID := uuid.NewString()
			sugar := logger.Sugar().With("run_id", runID)

			ctx := taintcontext.New(logger)

			if vocabularyPath != "" {
				vocabulary, err := config.LoadFile(vocabularyPath)
				if err != nil {
					return err
				}
				vocabulary.Seed(ctx)
				sugar.Infow("loaded vocabulary", "path", vocabularyPath)
			}

			result := runDemo(ctx, maxDistance)
			fmt.Println(result.String())

			bytes, err := result.ToJSON()
			if err != nil {
				return err
			}
			fmt.Println(string(bytes))
			return nil
		},
	}

	root.Flags().StringVar(&vocabularyPath, "vocabulary", "", "path to a kind/feature vocabulary YAML file")
	root.Flags().IntVar(&maxDistance, "max-distance", 100, "maximum hop distance propagate() will retain")
	root.Flags().StringVar(&logFile, "log-file", "", "log file to rotate via lumberjack; stderr JSON if empty")

	return root
}

// runDemo builds a one-frame Taint describing taint originating at "one"
// and propagates it across a call site whose callee is "two".
func runDemo(ctx *taintcontext.Context, maxDistance int) taint.Taint {
	k := ctx.Kinds.Get("UserInputSource")
	one := ctx.Methods.Get("com.example.Source", "read", "com.example.Source.read()")
	two := ctx.Methods.Get("com.example.Sink", "write", "com.example.Sink.write(Ljava/lang/String;)V")
	callSite := ctx.Positions.Get("Sink.java", 42)

	input := taint.NewSet(frame.New(
		k, accesspath.New(accesspath.NewLeaf()), one, nil, nil, 0,
		method.NewSet(one), field.Bottom(),
		feature.BottomMayAlways(), feature.BottomMayAlways(), feature.Bottom(),
		nil, nil, position.Bottom(), nil,
	))

	return input.Propagate(two, accesspath.New(accesspath.NewArgument(0)), callSite, maxDistance, ctx, nil, nil)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
