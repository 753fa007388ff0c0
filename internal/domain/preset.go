package domain

import "time"

// QuickCommand is a saved console command. Template may hold {name}
// placeholders that are filled in before sending.
type QuickCommand struct {
	Name        string `json:"name"`
	Template    string `json:"command"`
	Description string `json:"description,omitempty"`
}

var DefaultQuickCommands = []QuickCommand{
	{Name: "op", Template: "op {player}", Description: "Give operator"},
	{Name: "gamemode", Template: "gamemode {mode} {player}", Description: "Change game mode"},
	{Name: "time", Template: "time set {time}", Description: "Set time"},
	{Name: "weather", Template: "weather {type}", Description: "Set weather"},
}

// JavaInstall is a Java executable registered by hand.
type JavaInstall struct {
	Path    string    `json:"path"`
	Version string    `json:"version"`
	Major   int       `json:"major"`
	AddedAt time.Time `json:"addedAt"`
}
