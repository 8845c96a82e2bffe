package globals

import "github.com/hashicorp/go-hclog"

var AppLogger = hclog.New(&hclog.LoggerOptions{
	Name:  "hovercast-coordinator",
	Level: hclog.LevelFromString("DEBUG"),
})
