// roomlog reconstructs room attendance and music plays from the session logs
// of a social VR client and stores them in a relational database.
package main

import (
	"os"

	"github.com/pypydance/roomlog/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
