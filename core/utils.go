package core

import (
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
)

// NewLogger returns a stdout logger whose lines look like:
//
//	2024/06/30 00:56:06 [consensus] (store) message
//
// The subprefix is optional.
func NewLogger(prefix string, subprefix string) *log.Logger {
	prefixFull := color.HiGreenString(fmt.Sprintf("[%s] ", prefix))
	if subprefix != "" {
		prefixFull += color.HiYellowString(fmt.Sprintf("(%s) ", subprefix))
	}
	return log.New(os.Stdout, prefixFull, log.Ldate|log.Ltime|log.Lmsgprefix)
}
