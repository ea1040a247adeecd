package main

import (
	"os"

	hatsetup "github.com/frequencylabs/meshadv-setup"
)

func main() {
	os.Exit(hatsetup.Run())
}
