/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/inkwell-comics/modsvc/cmd"

func main() {
	cmd.Execute()
}
