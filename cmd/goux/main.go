// Command goux boots the teaching kernel.
package main

import "github.com/huxgo/kernel/cmd"

func main() {
	cmd.Execute()
}
