package main

import "github.com/eegbench/eegbench/cmd"

func main() {
	cmd.Execute()
}
