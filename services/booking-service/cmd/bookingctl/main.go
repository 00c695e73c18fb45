// Command bookingctl administers the booking store: migrations, the service catalog and
// schedule files.
package main

import (
	"fmt"
	"os"

	"github.com/sto-booking/stobot/libs/config"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
