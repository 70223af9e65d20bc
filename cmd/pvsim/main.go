// Package main provides the pvsim CLI for solving photovoltaic arrays.
package main

func main() {
	Execute()
}
