package main

import (
	_ "git.cdm.community/cdm/cdm/src/admintools"
	"git.cdm.community/cdm/cdm/src/website"
)

func main() {
	website.WebsiteCommand.Execute()
}
