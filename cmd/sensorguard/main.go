// sensorguard trains a novelty detector on historical pump-sensor telemetry
// and watches a directory for new telemetry files to score and chart.
//
// Usage:
//
//	sensorguard watch --input <dir> --output <dir> --trainfile <csv> [--num-threads N]
//	sensorguard train --trainfile <csv> [--out model.gob]
//	sensorguard score <csv> --model model.gob [--out <csv>] [--images <dir>]
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	if cerr := closeLog(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
