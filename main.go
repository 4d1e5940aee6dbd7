package main

import "github.com/tembohq/sms-gateway/cmd"

func main() {
	cmd.Execute()
}
