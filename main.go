package main

import "github.com/vibast-solutions/ms-go-course-purchases/cmd"

func main() {
	cmd.Execute()
}
