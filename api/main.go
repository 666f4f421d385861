package main

import (
	"github.com/multishiva/multishiva/api/cmd/multishiva"
)

func main() {
	multishiva.Execute()
}
