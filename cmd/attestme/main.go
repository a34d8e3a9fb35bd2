package main

import (
	"os"

	"go.uber.org/zap"

	"github.com/TChairman/AttestMe/app"
)

func main() {
	if err := app.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	zap.ReplaceGlobals(zap.Must(zap.NewProduction()))
}
