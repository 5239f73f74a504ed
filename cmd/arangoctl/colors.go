package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// ANSI color codes (constants)
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiCyan   = "\033[36m"
	ansiBold   = "\033[1m"
	ansiDim    = "\033[2m"
)

var colorsEnabled = os.Getenv("NO_COLOR") == ""

// stdout and stderr are swapped in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func colorize(color, text string) string {
	if !colorsEnabled {
		return text
	}
	return color + text + ansiReset
}

func colorRed(text string) string    { return colorize(ansiRed, text) }
func colorGreen(text string) string  { return colorize(ansiGreen, text) }
func colorYellow(text string) string { return colorize(ansiYellow, text) }
func colorBlue(text string) string   { return colorize(ansiBlue, text) }
func colorCyan(text string) string   { return colorize(ansiCyan, text) }
func colorBold(text string) string   { return colorize(ansiBold, text) }
func colorDim(text string) string    { return colorize(ansiDim, text) }

func printSuccess(message string) {
	fmt.Fprintln(stdout, colorGreen("✓")+" "+message)
}

func printError(message string) {
	fmt.Fprintln(stderr, colorRed("✗")+" "+message)
}

func printWarning(message string) {
	fmt.Fprintln(stderr, colorYellow("⚠")+" "+message)
}

func printInfo(message string) {
	fmt.Fprintln(stdout, colorBlue("ℹ")+" "+message)
}

func printHeader(title string) {
	fmt.Fprintln(stdout, "\n"+colorBold(colorCyan(title)))
	fmt.Fprintln(stdout, colorDim(strings.Repeat("─", 40)))
}

// printTable writes rows in aligned columns. Widths count runes so colored
// or non-ASCII cells line up.
func printTable(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && utf8.RuneCountInString(cell) > widths[i] {
				widths[i] = utf8.RuneCountInString(cell)
			}
		}
	}

	pad := func(s string, w int) string {
		return s + strings.Repeat(" ", w-utf8.RuneCountInString(s)+2)
	}

	for i, h := range headers {
		fmt.Fprint(stdout, colorBold(h)+strings.Repeat(" ", widths[i]-utf8.RuneCountInString(h)+2))
	}
	fmt.Fprintln(stdout)

	for _, w := range widths {
		fmt.Fprint(stdout, strings.Repeat("─", w)+"  ")
	}
	fmt.Fprintln(stdout)

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprint(stdout, pad(cell, widths[i]))
			}
		}
		fmt.Fprintln(stdout)
	}
}
