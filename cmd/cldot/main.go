// Command cldot computes dot products on a compute device.
//
// The device is the first device of the default OpenCL platform when cldot is
// built with the opencl tag and a driver is installed, and the host CPU
// otherwise.
//
// Usage:
//
//	cldot dot --x 1,2,3,4 --y 1,1,1,1
//	cldot dot --input vectors.yaml --pad
//	cldot caps
//	cldot devices
//	cldot version
//
// Global flags:
//
//	--config string      YAML configuration file
//	--backend string     auto, opencl or host
//	--log-level string   debug, info, warn or error
//	--log-format string  text or json
//	--metrics            print Prometheus metrics after the command
//
// Example:
//
//	# Pad a length-5 input and log the invocation as JSON
//	cldot dot --x 1,2,3,4,5 --y 1,1,1,1,1 --pad --log-format json
//
//	# Fail instead of falling back to the host CPU
//	CLDOT_BACKEND=opencl cldot dot --no-fallback --input vectors.yaml
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cldot: %v\n", err)
		os.Exit(1)
	}
}
