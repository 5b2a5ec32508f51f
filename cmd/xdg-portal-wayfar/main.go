package main

import "github.com/bryanchriswhite/xdg-portal-wayfar/cmd/xdg-portal-wayfar/commands"

func main() {
	commands.Execute()
}
