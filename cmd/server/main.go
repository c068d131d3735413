package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "classificador-som"
	serviceVersion    = "1.0.0"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
