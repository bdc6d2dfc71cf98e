// candlekeep maintains a local archive of OKX 5-minute candlestick data:
// fetch full history, update incrementally, audit for gaps, and render
// charts from the stored datasets.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
